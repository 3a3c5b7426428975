package gems

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/fetch"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/library"
)

// SourceFetcher 把包版本的源码取到本地并返回目录。
type SourceFetcher interface {
	Fetch(ctx context.Context, name, version string) (string, error)
}

// Preparer 同步抓取远程包并生成文档。同一版本的并发请求只执行一次。
// 共享的准备过程不随任何单个请求取消，只受 timeout 约束；每个调用方仍可因自身 ctx 结束而提前返回。
type Preparer struct {
	fetcher   SourceFetcher
	generator generator.Generator
	layout    library.PackageLayout
	timeout   time.Duration
	group     singleflight.Group
}

// NewPreparer 构造远程包准备器。timeout 为 0 时共享的准备过程不设时限。
func NewPreparer(fetcher SourceFetcher, gen generator.Generator, layout library.PackageLayout, timeout time.Duration) *Preparer {
	return &Preparer{fetcher: fetcher, generator: gen, layout: layout, timeout: timeout}
}

func (p *Preparer) Prepare(ctx context.Context, v library.Version) (library.Version, error) {
	name, version := v.Identity.Name, v.Version
	key := name + "/" + version
	ch := p.group.DoChan(key, func() (any, error) {
		shared, cancel := p.sharedContext(ctx)
		defer cancel()
		return p.prepare(shared, name, version)
	})

	select {
	case <-ctx.Done():
		return library.Version{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return library.Version{}, res.Err
		}
		v.SourcePath = res.Val.(string)
		return v, nil
	}
}

func (p *Preparer) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		return context.WithTimeout(detached, p.timeout)
	}
	return context.WithCancel(detached)
}

func (p *Preparer) prepare(ctx context.Context, name, version string) (string, error) {
	docsDir := p.layout.DocsDir(name, version)
	if info, err := os.Stat(docsDir); err == nil && info.IsDir() {
		return docsDir, nil
	}

	sourceDir, err := p.fetcher.Fetch(ctx, name, version)
	if err != nil {
		if errors.Is(err, fetch.ErrPackageNotFound) {
			return "", fmt.Errorf("%w: %v", docmodule.ErrNotFound, err)
		}
		return "", err
	}

	staging := filepath.Join(p.layout.VersionDir(name, version), ".docs-"+uuid.NewString())
	defer os.RemoveAll(staging)
	if err := p.generator.Generate(ctx, sourceDir, staging, name+" "+version); err != nil {
		return "", fmt.Errorf("generate %s %s: %w", name, version, err)
	}
	if err := os.Rename(staging, docsDir); err != nil {
		if info, statErr := os.Stat(docsDir); statErr == nil && info.IsDir() {
			return docsDir, nil
		}
		return "", err
	}
	return docsDir, nil
}
