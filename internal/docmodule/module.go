package docmodule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/cache"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/library"
	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/metrics"
)

// Module 把注册表、路由、生成器与渲染缓存绑定成一个可调用的适配器。
type Module struct {
	meta      ModuleMetadata
	registry  library.Registry
	router    Router
	preparer  Preparer
	generator generator.Generator
	publisher *cache.Publisher
	recorder  metrics.Recorder
	logger    *logrus.Logger
}

var _ Adapter = (*Module)(nil)

// Build 根据模块键构造适配器。
func Build(key string, deps Deps) (*Module, error) {
	meta, ok := Resolve(key)
	if !ok {
		return nil, fmt.Errorf("module %s is not registered", key)
	}
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}
	components, err := meta.Build(deps)
	if err != nil {
		return nil, fmt.Errorf("build module %s: %w", meta.Key, err)
	}
	return NewModule(meta, components, deps), nil
}

// NewModule 直接由组件构造适配器，便于测试注入假注册表。
func NewModule(meta ModuleMetadata, components Components, deps Deps) *Module {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	router := components.Router
	if router == nil {
		router = SegmentRouter{}
	}
	return &Module{
		meta:      meta,
		registry:  components.Registry,
		router:    router,
		preparer:  components.Preparer,
		generator: deps.Generator,
		publisher: deps.Publisher,
		recorder:  metrics.OrNoop(deps.Recorder),
		logger:    logger,
	}
}

func (m *Module) Key() string {
	return m.meta.Key
}

// Metadata 返回模块元数据。
func (m *Module) Metadata() ModuleMetadata {
	return m.meta
}

// Registry 返回底层注册表，状态查询直接读取它。
func (m *Module) Registry() library.Registry {
	return m.registry
}

// Resolve 查找 ref 对应的版本；未指定版本时使用注册表给出的第一个（默认）版本。
func (m *Module) Resolve(_ context.Context, ref Ref) (library.Version, error) {
	versions := m.registry.Find(ref.Identity)
	if len(versions) == 0 {
		return library.Version{}, ErrNotFound
	}
	if ref.Version == "" {
		return versions[0], nil
	}
	v, ok := library.Lookup(versions, ref.Version)
	if !ok {
		return library.Version{}, ErrNotFound
	}
	return v, nil
}

func (m *Module) Render(ctx context.Context, ref Ref) ([]byte, error) {
	started := time.Now()
	body, err := m.render(ctx, ref)
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	m.recorder.IncRender(m.meta.Key, result)
	m.logger.WithFields(logging.RenderFields(m.meta.Key, ref.Identity.String(), ref.Version, ref.Page)).
		WithField("duration_ms", time.Since(started).Milliseconds()).
		WithField("result", result).
		Debug("render")
	return body, err
}

func (m *Module) render(ctx context.Context, ref Ref) ([]byte, error) {
	v, err := m.ready(ctx, ref)
	if err != nil {
		return nil, err
	}
	body, err := m.generator.Render(ctx, v.SourcePath, ref.Page, ref.Base)
	if errors.Is(err, generator.ErrPageNotFound) {
		return nil, ErrNotFound
	}
	return body, err
}

// ready 解析版本，必要时（未抓取的远程包）先同步准备文档。
func (m *Module) ready(ctx context.Context, ref Ref) (library.Version, error) {
	v, err := m.Resolve(ctx, ref)
	if err != nil {
		return library.Version{}, err
	}
	if v.Ready() {
		return v, nil
	}
	if m.preparer == nil {
		return library.Version{}, ErrNotFound
	}
	return m.preparer.Prepare(ctx, v)
}

// BasePath 返回 ref 所指项目的 URL 前缀：/<family>/<identity>，URL 中带版本时再加 /<version>。
func (m *Module) BasePath(ref Ref) string {
	base := "/" + m.meta.Key + "/" + ref.Identity.String()
	if ref.Version != "" {
		base += "/" + ref.Version
	}
	return base
}

func (m *Module) List(letter string) []library.Entry {
	return library.FilterByLetter(m.registry.All(), letter)
}

func (m *Module) Serve(ctx context.Context, requestPath string) ([]byte, error) {
	rest, ok := m.trimPrefix(requestPath)
	if !ok {
		return nil, ErrNotFound
	}
	ref, ok := m.router.Parse(rest, m.registry)
	if !ok {
		return nil, ErrNotFound
	}
	ref.Base = m.BasePath(ref)
	body, err := m.Render(ctx, ref)
	if err != nil {
		return nil, err
	}
	return m.publisher.Publish(ctx, requestPath, body), nil
}

func (m *Module) Search(ctx context.Context, rest, query string) ([]SearchHit, error) {
	ref, ok := m.router.Parse(rest, m.registry)
	if !ok || ref.Page != "" {
		return nil, ErrNotFound
	}
	v, err := m.ready(ctx, ref)
	if err != nil {
		return nil, err
	}
	pages, err := m.generator.Search(ctx, v.SourcePath, query)
	if errors.Is(err, generator.ErrPageNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	base := m.BasePath(ref)
	hits := make([]SearchHit, 0, len(pages))
	for _, p := range pages {
		href := base
		if p.Page != "index" {
			href += "/" + p.Page
		}
		hits = append(hits, SearchHit{Page: p.Page, Title: p.Title, Href: href})
	}
	return hits, nil
}

func (m *Module) trimPrefix(requestPath string) (string, bool) {
	prefix := "/" + m.meta.Key
	if requestPath != prefix && !strings.HasPrefix(requestPath, prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(requestPath, prefix), true
}
