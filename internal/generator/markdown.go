package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const (
	pageSuffix  = ".html"
	indexPage   = "index"
	maxFileSize = 1 << 20
	// catalogueFile 以 "." 开头，不会被当作页面访问。
	catalogueFile = ".pages.json"
)

var markdownExts = map[string]bool{".md": true, ".markdown": true, ".mdown": true}
var textExts = map[string]bool{".txt": true, ".rdoc": true, "": true}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<nav><a href="./">{{.Project}}</a></nav>
<main>
{{.Body}}
</main>
</body>
</html>
`))

type pageData struct {
	Title   string
	Project string
	Body    template.HTML
}

// Markdown 以 goldmark 渲染 Markdown，纯文本文件以 <pre> 展示。
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown 构造启用 GFM 扩展与自动标题 ID 的生成器。
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

type sourcePage struct {
	rel    string
	page   string
	source string
	readme bool
}

// Generate 遍历 sourceDir，把每个文档文件渲染为 outputDir/<page>.html，并写出页面目录供搜索使用。
func (g *Markdown) Generate(ctx context.Context, sourceDir, outputDir, project string) error {
	pages, err := collectPages(sourceDir)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("%w in %s", ErrNoDocumentation, sourceDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	pageByRel := make(map[string]string, len(pages))
	for _, p := range pages {
		pageByRel[p.rel] = p.page
	}

	var (
		readme     *sourcePage
		readmeBody []byte
		names      = make([]string, 0, len(pages))
		catalogue  = make([]PageInfo, 0, len(pages)+1)
	)
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &pages[i]
		body, title, err := g.renderFile(*p, pageByRel)
		if err != nil {
			return fmt.Errorf("render %s: %w", p.source, err)
		}
		if title == "" {
			title = p.page
		}
		if err := writePage(outputDir, p.page, title, project, body); err != nil {
			return err
		}
		names = append(names, p.page)
		catalogue = append(catalogue, PageInfo{Page: p.page, Title: title})
		if p.readme && (readme == nil || len(p.page) < len(readme.page)) {
			readme, readmeBody = p, body
		}
	}

	indexBody := readmeBody
	if readme == nil {
		indexBody = listing(names)
	}
	if err := writePage(outputDir, indexPage, project, project, indexBody); err != nil {
		return err
	}
	catalogue = append(catalogue, PageInfo{Page: indexPage, Title: project})
	return writeCatalogue(outputDir, catalogue)
}

// Render 读取 docsDir 中已生成的页面，page 为空时返回索引页。base 非空时注入
// <base href="<base>/">，页面内的相对链接据此解析到同一项目下。
func (g *Markdown) Render(ctx context.Context, docsDir, page, base string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, ok := cleanPage(page)
	if !ok {
		return nil, ErrPageNotFound
	}
	body, err := os.ReadFile(filepath.Join(docsDir, filepath.FromSlash(name)+pageSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return withBase(body, base), nil
}

// Search 返回页面名或标题包含 query（不区分大小写）的页面；query 为空时返回全部页面。
func (g *Markdown) Search(ctx context.Context, docsDir, query string) ([]PageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	catalogue, err := readCatalogue(docsDir)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	hits := make([]PageInfo, 0, len(catalogue))
	for _, info := range catalogue {
		if needle == "" ||
			strings.Contains(strings.ToLower(info.Page), needle) ||
			strings.Contains(strings.ToLower(info.Title), needle) {
			hits = append(hits, info)
		}
	}
	return hits, nil
}

func withBase(body []byte, base string) []byte {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return body
	}
	const head = "<head>"
	idx := bytes.Index(body, []byte(head))
	if idx < 0 {
		return body
	}
	tag := `<base href="` + template.HTMLEscapeString(base+"/") + `">`
	out := make([]byte, 0, len(body)+len(tag))
	out = append(out, body[:idx+len(head)]...)
	out = append(out, tag...)
	return append(out, body[idx+len(head):]...)
}

func writeCatalogue(outputDir string, catalogue []PageInfo) error {
	sort.Slice(catalogue, func(i, j int) bool { return catalogue[i].Page < catalogue[j].Page })
	raw, err := json.Marshal(catalogue)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, catalogueFile), raw, 0o644)
}

// readCatalogue 读取页面目录；缺失时（旧的发布目录）退化为按文件名列出页面。
func readCatalogue(docsDir string) ([]PageInfo, error) {
	raw, err := os.ReadFile(filepath.Join(docsDir, catalogueFile))
	if err == nil {
		var catalogue []PageInfo
		if err := json.Unmarshal(raw, &catalogue); err != nil {
			return nil, fmt.Errorf("decode page catalogue: %w", err)
		}
		return catalogue, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var catalogue []PageInfo
	err = filepath.WalkDir(docsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == docsDir && errors.Is(err, fs.ErrNotExist) {
				return ErrPageNotFound
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), pageSuffix) {
			return nil
		}
		rel, err := filepath.Rel(docsDir, p)
		if err != nil {
			return err
		}
		page := strings.TrimSuffix(filepath.ToSlash(rel), pageSuffix)
		catalogue = append(catalogue, PageInfo{Page: page, Title: page})
		return nil
	})
	return catalogue, err
}

// renderFile 渲染单个源文件，返回正文与第一个标题。
func (g *Markdown) renderFile(p sourcePage, pageByRel map[string]string) ([]byte, string, error) {
	raw, err := os.ReadFile(p.source)
	if err != nil {
		return nil, "", err
	}
	ext := strings.ToLower(filepath.Ext(p.source))
	if !markdownExts[ext] {
		var buf bytes.Buffer
		buf.WriteString("<pre>")
		template.HTMLEscape(&buf, raw)
		buf.WriteString("</pre>")
		return buf.Bytes(), "", nil
	}

	doc := g.md.Parser().Parse(text.NewReader(raw))
	rewriteLinks(doc, p, pageByRel)
	var buf bytes.Buffer
	if err := g.md.Renderer().Render(&buf, raw, doc); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), headingText(doc, raw), nil
}

func collectPages(sourceDir string) ([]sourcePage, error) {
	var pages []sourcePage
	err := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != sourceDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !documentable(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		pages = append(pages, sourcePage{
			rel:    rel,
			page:   strings.TrimSuffix(rel, path.Ext(rel)),
			source: p,
			readme: strings.HasPrefix(strings.ToUpper(d.Name()), "README"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	disambiguate(pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].page < pages[j].page })
	return pages, nil
}

// disambiguate 让去掉扩展名后重名的文件（README 与 README.md）以及占用保留名 index 的文件
// 改用带扩展名的相对路径作为页面名，避免后写入的页面覆盖先写入的。
func disambiguate(pages []sourcePage) {
	counts := make(map[string]int, len(pages))
	for _, p := range pages {
		counts[p.page]++
	}
	for i := range pages {
		p := &pages[i]
		if p.page != p.rel && (counts[p.page] > 1 || p.page == indexPage) {
			p.page = p.rel
		}
	}
}

// documentable 只接受 Markdown、rdoc/txt 以及无扩展名的大写说明文件（README、LICENSE 等）。
func documentable(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if markdownExts[ext] {
		return true
	}
	if !textExts[ext] {
		return false
	}
	if ext == "" {
		return name == strings.ToUpper(name)
	}
	return true
}

func writePage(outputDir, page, title, project string, body []byte) error {
	target := filepath.Join(outputDir, filepath.FromSlash(page)+pageSuffix)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, pageData{
		Title:   title,
		Project: project,
		Body:    template.HTML(body),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(target, buf.Bytes(), 0o644)
}

func listing(pages []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<ul>\n")
	for _, p := range pages {
		fmt.Fprintf(&buf, "<li><a href=\"%s\">%s</a></li>\n",
			template.HTMLEscapeString(p), template.HTMLEscapeString(p))
	}
	buf.WriteString("</ul>\n")
	return buf.Bytes()
}

func cleanPage(page string) (string, bool) {
	trimmed := strings.Trim(page, "/")
	if trimmed == "" {
		return indexPage, true
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" {
		return indexPage, true
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	// 兼容旧式 /file/README 链接。
	cleaned = strings.TrimPrefix(cleaned, "file/")
	for _, seg := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return strings.TrimSuffix(cleaned, pageSuffix), true
}
