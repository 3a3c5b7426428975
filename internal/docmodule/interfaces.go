package docmodule

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/cache"
	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/library"
	"github.com/any-hub/doc-hub/internal/metrics"
)

// ErrNotFound 表示标识、版本或页面不存在，HTTP 层渲染为 404 页面。
var ErrNotFound = errors.New("documentation not found")

// Ref 是解析后的文档请求：Version 为空表示默认版本，Page 为空表示索引页。
// Base 是页面所属项目在站点上的 URL 前缀，渲染时用于解析页面内的相对链接。
type Ref struct {
	Identity library.Identity
	Version  string
	Page     string
	Base     string
}

// SearchHit 是项目内搜索命中的一个页面。
type SearchHit struct {
	Page  string
	Title string
	Href  string
}

// Adapter 是两个来源族共享的能力接口。
type Adapter interface {
	Key() string
	Resolve(ctx context.Context, ref Ref) (library.Version, error)
	Render(ctx context.Context, ref Ref) ([]byte, error)
	List(letter string) []library.Entry
	// Serve 解析 requestPath（形如 /<family>/...），渲染并写入渲染缓存。
	Serve(ctx context.Context, requestPath string) ([]byte, error)
	// Search 在 rest（<identity>[/<version>]）指向的项目版本内按页面名或标题查找。
	Search(ctx context.Context, rest, query string) ([]SearchHit, error)
}

// Router 把族内路径（不含 /<family> 前缀）解析为 Ref。
type Router interface {
	Parse(rest string, registry library.Registry) (Ref, bool)
}

// Preparer 为尚无文档产物的版本（未抓取的远程包）同步生成文档并返回就绪的版本。
type Preparer interface {
	Prepare(ctx context.Context, v library.Version) (library.Version, error)
}

// Deps 汇总构建模块所需的进程级依赖，启动时构造一次。
type Deps struct {
	Config     *config.Config
	Generator  generator.Generator
	Publisher  *cache.Publisher
	Recorder   metrics.Recorder
	Logger     *logrus.Logger
	HTTPClient *http.Client
}

// Components 是模块 Build 的产物。Preparer 可为空。
type Components struct {
	Registry library.Registry
	Router   Router
	Preparer Preparer
}

// ModuleMetadata 记录一个来源族的静态信息与构造函数，供启动装配与诊断端使用。
type ModuleMetadata struct {
	Key         string
	Description string
	Origin      library.Origin
	// PathPattern 仅用于诊断展示。
	PathPattern string
	Build       func(Deps) (Components, error)
}
