package gems

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/fetch"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/library"
	"github.com/any-hub/doc-hub/internal/logging"
)

type fakeFetcher struct {
	layout library.PackageLayout
	calls  int32
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, name, version string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	dir := f.layout.SourceDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	readme := fmt.Sprintf("# %s %s\n", name, version)
	return dir, os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0o644)
}

func TestPreparerFetchesAndGeneratesOnce(t *testing.T) {
	layout := library.PackageLayout{Root: t.TempDir()}
	fetcher := &fakeFetcher{layout: layout}
	preparer := NewPreparer(fetcher, generator.NewMarkdown(), layout, 0)
	v := library.Version{Identity: library.Identity{Name: "rack"}, Version: "3.0.8", Origin: library.OriginRemotePackage}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready, err := preparer.Prepare(context.Background(), v)
			if err != nil {
				t.Errorf("prepare error: %v", err)
				return
			}
			if ready.SourcePath != layout.DocsDir("rack", "3.0.8") {
				t.Errorf("unexpected source path %s", ready.SourcePath)
			}
		}()
	}
	wg.Wait()

	// 文档已存在后不再抓取。
	if _, err := preparer.Prepare(context.Background(), v); err != nil {
		t.Fatalf("prepare error: %v", err)
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls < 1 || calls > 4 {
		t.Fatalf("unexpected fetch count %d", calls)
	}
	before := atomic.LoadInt32(&fetcher.calls)
	if _, err := preparer.Prepare(context.Background(), v); err != nil {
		t.Fatalf("prepare error: %v", err)
	}
	if atomic.LoadInt32(&fetcher.calls) != before {
		t.Fatalf("ready docs must not trigger another fetch")
	}
	if _, err := os.Stat(filepath.Join(layout.DocsDir("rack", "3.0.8"), "index.html")); err != nil {
		t.Fatalf("expected generated index: %v", err)
	}
}

// blockingFetcher 在 release 关闭前阻塞，并在 ctx 取消时返回 ctx.Err()。
type blockingFetcher struct {
	layout  library.PackageLayout
	started chan struct{}
	release chan struct{}
	calls   int32
}

func (f *blockingFetcher) Fetch(ctx context.Context, name, version string) (string, error) {
	if atomic.AddInt32(&f.calls, 1) == 1 {
		close(f.started)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.release:
	}
	dir := f.layout.SourceDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# rack\n"), 0o644)
}

func TestPreparerSurvivesFirstCallerCancellation(t *testing.T) {
	layout := library.PackageLayout{Root: t.TempDir()}
	fetcher := &blockingFetcher{layout: layout, started: make(chan struct{}), release: make(chan struct{})}
	preparer := NewPreparer(fetcher, generator.NewMarkdown(), layout, time.Minute)
	v := library.Version{Identity: library.Identity{Name: "rack"}, Version: "3.0.8"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := preparer.Prepare(firstCtx, v)
		firstErr <- err
	}()
	<-fetcher.started

	type outcome struct {
		v   library.Version
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		ready, err := preparer.Prepare(context.Background(), v)
		second <- outcome{ready, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller should return context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)

	select {
	case got := <-second:
		if got.err != nil {
			t.Fatalf("caller with live context failed: %v", got.err)
		}
		if got.v.SourcePath != layout.DocsDir("rack", "3.0.8") {
			t.Fatalf("unexpected source path %s", got.v.SourcePath)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("caller with live context did not return")
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls != 1 {
		t.Fatalf("expected a single shared fetch, got %d", calls)
	}
}

func TestPreparerBoundsSharedWorkByTimeout(t *testing.T) {
	layout := library.PackageLayout{Root: t.TempDir()}
	fetcher := &blockingFetcher{layout: layout, started: make(chan struct{}), release: make(chan struct{})}
	defer close(fetcher.release)
	preparer := NewPreparer(fetcher, generator.NewMarkdown(), layout, 50*time.Millisecond)

	_, err := preparer.Prepare(context.Background(), library.Version{Identity: library.Identity{Name: "rack"}, Version: "1.0"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected shared work to hit its timeout, got %v", err)
	}
}

func TestPreparerMapsMissingUpstreamToNotFound(t *testing.T) {
	layout := library.PackageLayout{Root: t.TempDir()}
	fetcher := &fakeFetcher{layout: layout, err: fmt.Errorf("%w: rack", fetch.ErrPackageNotFound)}
	preparer := NewPreparer(fetcher, generator.NewMarkdown(), layout, 0)

	_, err := preparer.Prepare(context.Background(), library.Version{Identity: library.Identity{Name: "rack"}, Version: "0.0.1"})
	if !errors.Is(err, docmodule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildWithMissingManifestServesNothing(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{Global: config.GlobalConfig{
		PackagesPath:    filepath.Join(root, "packages"),
		PackageManifest: filepath.Join(root, "remote_gems"),
		PackageSource:   "https://rubygems.org/downloads/{name}-{version}.gem",
	}}
	mod, err := docmodule.Build(config.FamilyGems, docmodule.Deps{
		Config:    cfg,
		Generator: generator.NewMarkdown(),
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	if len(mod.List("")) != 0 {
		t.Fatalf("missing manifest must yield no packages")
	}
	if _, err := mod.Serve(context.Background(), "/gems/rails"); !errors.Is(err, docmodule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildServesManifestPackages(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "remote_gems")
	if err := os.WriteFile(manifest, []byte("rack 3.0.8 2.2.8\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	cfg := &config.Config{Global: config.GlobalConfig{
		PackagesPath:    filepath.Join(root, "packages"),
		PackageManifest: manifest,
		PackageSource:   "https://rubygems.org/downloads/{name}-{version}.gem",
	}}
	mod, err := docmodule.Build(config.FamilyGems, docmodule.Deps{Config: cfg, Generator: generator.NewMarkdown(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	entries := mod.List("r")
	if len(entries) != 1 || len(entries[0].Versions) != 2 || entries[0].Versions[0].Version != "3.0.8" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestBuildSkipsMalformedManifestLines(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "remote_gems")
	if err := os.WriteFile(manifest, []byte("rails\n../etc 1.0\nrack 3.0.8\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	cfg := &config.Config{Global: config.GlobalConfig{
		PackagesPath:    filepath.Join(root, "packages"),
		PackageManifest: manifest,
		PackageSource:   "https://rubygems.org/downloads/{name}-{version}.gem",
	}}
	mod, err := docmodule.Build(config.FamilyGems, docmodule.Deps{Config: cfg, Generator: generator.NewMarkdown(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("malformed lines must not fail the build: %v", err)
	}
	entries := mod.List("")
	if len(entries) != 1 || entries[0].Identity.Name != "rack" {
		t.Fatalf("expected only rack to be served, got %+v", entries)
	}
}
