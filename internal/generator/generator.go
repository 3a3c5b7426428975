package generator

import (
	"context"
	"errors"
)

// Generator 是外部文档生成器的窄接口：Generate 把源码树转换为可渲染页面，
// project 用作页面标题；Render 读取某一页面，base 为该项目在站点上的 URL 前缀（可为空）；
// Search 按页面名或标题查找。三者都只依赖磁盘状态，可在 worker 进程与服务进程间共享产物。
type Generator interface {
	Generate(ctx context.Context, sourceDir, outputDir, project string) error
	Render(ctx context.Context, docsDir, page, base string) ([]byte, error)
	Search(ctx context.Context, docsDir, query string) ([]PageInfo, error)
}

// PageInfo 描述一个已生成页面。
type PageInfo struct {
	Page  string `json:"page"`
	Title string `json:"title"`
}

var (
	// ErrNoDocumentation 表示源码树中没有任何可生成文档的文件。
	ErrNoDocumentation = errors.New("no documentation sources found")
	// ErrPageNotFound 表示请求的页面不存在。
	ErrPageNotFound = errors.New("documentation page not found")
)
