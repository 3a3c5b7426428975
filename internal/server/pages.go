package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// IndexLink 是索引页中的一个链接。
type IndexLink struct {
	Label string
	Href  string
}

// IndexEntry 是索引页的一行：项目本身与它的各个版本。
type IndexEntry struct {
	IndexLink
	Versions []IndexLink
}

// IndexPage 描述一个族的索引页。Letters 非空时渲染首字母导航。
type IndexPage struct {
	SiteTitle string
	Heading   string
	Letter    string
	Letters   []IndexLink
	Entries   []IndexEntry
}

type errorPage struct {
	SiteTitle string
	Status    int
	Heading   string
	Message   string
}

// RenderIndex 渲染族索引页。
func RenderIndex(page IndexPage) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "index.html", page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderError 渲染 404/500 等错误页。
func RenderError(siteTitle string, status int) ([]byte, error) {
	page := errorPage{SiteTitle: siteTitle, Status: status, Heading: http.StatusText(status)}
	switch status {
	case http.StatusNotFound:
		page.Heading = "Not Found"
		page.Message = "The documentation you requested does not exist, or has not been generated yet."
	case http.StatusInternalServerError:
		page.Heading = "Unknown Error!"
		page.Message = "Something quite unexpected just happened. The error has been logged."
	}
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "error.html", page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
