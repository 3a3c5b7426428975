package generator

import (
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
)

// rewriteLinks 把文档内的相对链接改写为相对项目根的页面名，
// 页面渲染时配合 <base href="<项目 URL>/"> 使用，与页面所在目录及请求 URL 是否带版本无关。
func rewriteLinks(doc ast.Node, current sourcePage, pageByRel map[string]string) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(resolveLink(string(link.Destination), current, pageByRel))
		}
		return ast.WalkContinue, nil
	})
}

func resolveLink(dest string, current sourcePage, pageByRel map[string]string) string {
	if dest == "" || isExternal(dest) || strings.Contains(dest, "?") {
		return dest
	}
	target, fragment, hasFragment := strings.Cut(dest, "#")
	suffix := ""
	if hasFragment {
		suffix = "#" + fragment
	}
	if target == "" {
		return current.page + suffix
	}

	resolved := path.Clean(path.Join(path.Dir(current.rel), target))
	switch {
	case resolved == ".":
		return "./" + suffix
	case resolved == ".." || strings.HasPrefix(resolved, "../"):
		return dest
	}
	if page, ok := pageByRel[resolved]; ok {
		return page + suffix
	}
	return resolved + suffix
}

// isExternal 判断链接是否带 scheme（http:、mailto: 等）或为站内绝对路径。
func isExternal(dest string) bool {
	if strings.HasPrefix(dest, "/") {
		return true
	}
	colon := strings.IndexByte(dest, ':')
	if colon < 0 {
		return false
	}
	slash := strings.IndexByte(dest, '/')
	return slash < 0 || colon < slash
}

// headingText 返回文档中第一个标题的纯文本，没有标题时返回空串。
func headingText(doc ast.Node, source []byte) string {
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		collectText(heading, source, &b)
		title = strings.TrimSpace(b.String())
		return ast.WalkStop, nil
	})
	return title
}

func collectText(n ast.Node, source []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			collectText(c, source, b)
		}
	}
}
