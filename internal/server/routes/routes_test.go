package routes

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/klauspost/compress/gzip"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/any-hub/doc-hub/internal/cache"
	"github.com/any-hub/doc-hub/internal/checkout"
	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/fetch"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/metrics"
	"github.com/any-hub/doc-hub/internal/server"
)

// scriptedFetcher 模拟 git：成功时写入 README 并返回固定修订号。
type scriptedFetcher struct {
	mu       sync.Mutex
	revision string
	err      error
	calls    int
	files    map[string]string
}

func (f *scriptedFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return fetch.Result{}, f.err
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return fetch.Result{}, err
	}
	readme := "# Widget\n\nWidget documentation at " + f.revision + ".\n"
	if err := os.WriteFile(filepath.Join(req.Dir, "README.md"), []byte(readme), 0o644); err != nil {
		return fetch.Result{}, err
	}
	for name, content := range f.files {
		path := filepath.Join(req.Dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fetch.Result{}, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fetch.Result{}, err
		}
	}
	return fetch.Result{Revision: f.revision}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testServer struct {
	app     *fiber.App
	cfg     *config.Config
	fetcher *scriptedFetcher
}

type serverOptions struct {
	caching  bool
	manifest string
	source   string
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      8080,
			Caching:         opts.caching,
			SiteTitle:       "doc-hub",
			PublicPath:      filepath.Join(root, "public"),
			ReposPath:       filepath.Join(root, "repos"),
			TmpPath:         filepath.Join(root, "tmp"),
			PackagesPath:    filepath.Join(root, "packages"),
			PackageManifest: filepath.Join(root, "remote_gems"),
			PackageSource:   opts.source,
		},
		Families: []string{config.FamilyGems, config.FamilyGitHub},
	}
	if opts.manifest != "" {
		if err := os.WriteFile(cfg.Global.PackageManifest, []byte(opts.manifest), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}

	logger := logging.Discard()
	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	store, err := cache.NewStore(cfg.Global.PublicPath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	publisher := cache.NewPublisher(store, cfg.Global.Caching, logger, recorder)
	gen := generator.NewMarkdown()

	families, err := server.NewFamilyRegistry(cfg, docmodule.Deps{
		Generator: gen,
		Publisher: publisher,
		Recorder:  recorder,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("families: %v", err)
	}

	fetcher := &scriptedFetcher{revision: "deadbeef"}
	worker := checkout.NewWorker(cfg.Global.ReposPath, cfg.Global.TmpPath,
		map[checkout.Scheme]fetch.Fetcher{checkout.SchemeGit: fetcher, checkout.SchemeSvn: fetcher},
		gen, logger, recorder)
	pool := checkout.NewPool(worker, 1, 8, time.Minute, logger)
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	orch := checkout.NewOrchestrator(pool, logger, recorder)
	status := checkout.NewStatusResolver(families.ScmRegistry(cfg), checkout.NewMarkerStore(cfg.Global.TmpPath))

	app, err := server.NewApp(server.AppOptions{Logger: logger, Families: families, Cache: store, SiteTitle: "doc-hub"})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	RegisterCheckoutRoutes(app, orch, status, logger)
	RegisterModuleRoutes(app, families)
	RegisterMetricsRoute(app, recorder.Handler())
	RegisterDocRoutes(app, DocOptions{Families: families, Publisher: publisher, Logger: logger, SiteTitle: "doc-hub"})

	return &testServer{app: app, cfg: cfg, fetcher: fetcher}
}

func (s *testServer) get(t *testing.T, path string) (int, string, http.Header) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header
}

func (s *testServer) postCheckout(t *testing.T, form url.Values) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("POST /checkout failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func (s *testServer) waitStatus(t *testing.T, path, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, body, _ := s.get(t, path)
		if body == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET %s: expected %s, last reply %s", path, want, body)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCheckoutPublishesDocumentation(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	if _, body, _ := srv.get(t, "/checkout/acme/widget/deadbeef"); body != "NO" {
		t.Fatalf("expected NO before checkout, got %s", body)
	}
	reply := srv.postCheckout(t, url.Values{"scheme": {"git"}, "url": {"git://github.com/acme/widget.git"}})
	if reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/deadbeef", "YES")

	status, body, _ := srv.get(t, "/github/acme/widget")
	if status != fiber.StatusOK || !strings.Contains(body, "Widget documentation at deadbeef") {
		t.Fatalf("expected rendered readme, got %d %s", status, body)
	}
	status, body, _ = srv.get(t, "/github/acme/widget/deadbeef")
	if status != fiber.StatusOK || !strings.Contains(body, "deadbeef") {
		t.Fatalf("expected explicit version page, got %d", status)
	}
	if _, body, _ = srv.get(t, "/github"); !strings.Contains(body, `href="/github/acme/widget/deadbeef"`) {
		t.Fatalf("expected project on the index page, got %s", body)
	}
}

var hrefPattern = regexp.MustCompile(`href="([^"]*)"`)

// followLink 按页面中的 <base> 解析相对链接，与浏览器一致。
func followLink(t *testing.T, page, requestPath, href string) string {
	t.Helper()
	base, err := url.Parse(requestPath)
	if err != nil {
		t.Fatalf("parse %s: %v", requestPath, err)
	}
	if m := regexp.MustCompile(`<base href="([^"]*)">`).FindStringSubmatch(page); m != nil {
		if base, err = base.Parse(m[1]); err != nil {
			t.Fatalf("parse base %s: %v", m[1], err)
		}
	}
	target, err := base.Parse(href)
	if err != nil {
		t.Fatalf("parse href %s: %v", href, err)
	}
	return target.Path
}

func TestGeneratedLinksResolveFromProjectURL(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	srv.fetcher.files = map[string]string{
		"README.md":     "# Widget

Read the [guide](docs/guide.md).
",
		"docs/guide.md": "# Guide

Back to the [readme](../README.md).
",
	}
	if reply := srv.postCheckout(t, url.Values{"scheme": {"git"}, "url": {"git://github.com/acme/widget.git"}}); reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/deadbeef", "YES")

	for _, start := range []string{"/github/acme/widget", "/github/acme/widget/", "/github/acme/widget/deadbeef"} {
		status, body, _ := srv.get(t, start)
		if status != fiber.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", start, status)
		}
		var guide string
		for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
			if strings.HasSuffix(m[1], "docs/guide") {
				guide = followLink(t, body, start, m[1])
			}
		}
		if guide == "" {
			t.Fatalf("GET %s: no guide link in %s", start, body)
		}
		if !strings.HasPrefix(guide, start) && !strings.HasPrefix(guide, "/github/acme/widget/") {
			t.Fatalf("GET %s: guide link left the project: %s", start, guide)
		}
		status, page, _ := srv.get(t, guide)
		if status != fiber.StatusOK || !strings.Contains(page, "Back to the") {
			t.Fatalf("following %s from %s: got %d", guide, start, status)
		}

		// 各页面的目录链接都能回到同一项目。
		for _, m := range hrefPattern.FindAllStringSubmatch(page, -1) {
			if strings.HasPrefix(m[1], "http") || strings.HasPrefix(m[1], "/") {
				continue
			}
			target := followLink(t, page, guide, m[1])
			if status, _, _ := srv.get(t, target); status != fiber.StatusOK {
				t.Fatalf("link %q on %s resolves to %s with status %d", m[1], guide, target, status)
			}
		}
	}
}

func TestSearchProjectPages(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	srv.fetcher.files = map[string]string{
		"docs/guide.md":   "# Getting Started

Steps.
",
		"docs/install.md": "# Installation
",
	}
	if reply := srv.postCheckout(t, url.Values{"scheme": {"git"}, "url": {"git://github.com/acme/widget.git"}}); reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/deadbeef", "YES")

	status, body, _ := srv.get(t, "/search/github/acme/widget?q=started")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, `href="/github/acme/widget/docs/guide"`) || strings.Contains(body, "docs/install") {
		t.Fatalf("expected only the guide by title, got %s", body)
	}
	_, body, _ = srv.get(t, "/search/github/acme/widget/deadbeef?q=INSTALL")
	if !strings.Contains(body, `href="/github/acme/widget/deadbeef/docs/install"`) {
		t.Fatalf("expected versioned link for page-name match, got %s", body)
	}
	for _, path := range []string{"/search/github/acme/missing?q=x", "/search/nope/acme/widget?q=x"} {
		if status, _, _ := srv.get(t, path); status != fiber.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, status)
		}
	}
}

func TestCheckoutRejectsUnsupportedScheme(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	cases := []url.Values{
		{"scheme": {"hg"}, "url": {"hg://host/acme/widget"}},
		{"scheme": {"git"}, "url": {"github.com/acme/widget.git"}},
		{"payload": {"not json"}},
	}
	for _, form := range cases {
		if reply := srv.postCheckout(t, form); reply != "INVALIDSCHEME" {
			t.Fatalf("expected INVALIDSCHEME for %v, got %s", form, reply)
		}
	}
	if srv.fetcher.callCount() != 0 {
		t.Fatalf("rejected requests must never reach the worker")
	}
	if entries, _ := os.ReadDir(srv.cfg.Global.ReposPath); len(entries) != 0 {
		t.Fatalf("rejected requests must not create directories, found %d", len(entries))
	}
}

func TestCheckoutFailureReportsError(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	srv.fetcher.err = errors.New("repository not found")

	if reply := srv.postCheckout(t, url.Values{"scheme": {"git"}, "url": {"git://github.com/acme/widget.git"}, "commit": {"abc123"}}); reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/abc123", "ERROR")

	if status, _, _ := srv.get(t, "/github/acme/widget"); status != fiber.StatusNotFound {
		t.Fatalf("failed checkout must not publish documentation, got %d", status)
	}
}

func TestCheckoutFromHookPayload(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	payload := `{"repository":{"url":"http://github.com/acme/widget"}}`
	if reply := srv.postCheckout(t, url.Values{"payload": {payload}}); reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/deadbeef", "YES")
}

func TestGemsIndexLetterFilter(t *testing.T) {
	srv := newTestServer(t, serverOptions{manifest: "rails 7.1.0 7.0.0\nrake 13.0.6\nactivesupport 7.1.0\n"})

	_, body, _ := srv.get(t, "/gems")
	if !strings.Contains(body, "activesupport") || strings.Contains(body, ">rails<") {
		t.Fatalf("default letter must be a, got %s", body)
	}
	_, body, _ = srv.get(t, "/gems/r")
	if !strings.Contains(body, `href="/gems/rails/7.1.0"`) || !strings.Contains(body, ">rake<") || strings.Contains(body, "activesupport") {
		t.Fatalf("expected r entries only, got %s", body)
	}
}

func TestGemsPagesFetchedOnFirstAccess(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rake-13.0.6.gem" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write(gzippedTar(t, map[string]string{
			"README.md":       "# Rake\n\nMake-like build utility.\n",
			"doc/rakefile.md": "# Rakefile format\n",
		}))
	}))
	defer upstream.Close()

	srv := newTestServer(t, serverOptions{
		caching:  true,
		manifest: "rake 13.0.6\n",
		source:   upstream.URL + "/{name}-{version}.gem",
	})

	status, body, _ := srv.get(t, "/gems/rake")
	if status != fiber.StatusOK || !strings.Contains(body, "Make-like build utility") {
		t.Fatalf("expected rendered package readme, got %d %s", status, body)
	}
	status, body, _ = srv.get(t, "/gems/rake/13.0.6/doc/rakefile")
	if status != fiber.StatusOK || !strings.Contains(body, "Rakefile format") {
		t.Fatalf("expected nested page, got %d %s", status, body)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("package must be downloaded once, got %d", got)
	}
	if _, err := os.Stat(filepath.Join(srv.cfg.Global.PublicPath, "gems", "rake.html")); err != nil {
		t.Fatalf("expected cached page with caching enabled: %v", err)
	}
	if status, _, _ := srv.get(t, "/gems/missing"); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown package, got %d", status)
	}
}

func TestCachingDisabledWritesNothing(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	if reply := srv.postCheckout(t, url.Values{"scheme": {"git"}, "url": {"git://github.com/acme/widget.git"}}); reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/deadbeef", "YES")
	if status, _, _ := srv.get(t, "/github/acme/widget"); status != fiber.StatusOK {
		t.Fatalf("expected page, got %d", status)
	}
	if entries, _ := os.ReadDir(srv.cfg.Global.PublicPath); len(entries) != 0 {
		t.Fatalf("caching disabled must not write pages, found %d entries", len(entries))
	}
}

func TestCachedPageOutlivesPublication(t *testing.T) {
	srv := newTestServer(t, serverOptions{caching: true})
	if reply := srv.postCheckout(t, url.Values{"scheme": {"git"}, "url": {"git://github.com/acme/widget.git"}}); reply != "OK" {
		t.Fatalf("expected OK, got %s", reply)
	}
	srv.waitStatus(t, "/checkout/acme/widget/deadbeef", "YES")
	if status, _, _ := srv.get(t, "/github/acme/widget"); status != fiber.StatusOK {
		t.Fatalf("expected page, got %d", status)
	}
	if err := os.RemoveAll(filepath.Join(srv.cfg.Global.ReposPath, "acme")); err != nil {
		t.Fatalf("remove published docs: %v", err)
	}
	status, body, _ := srv.get(t, "/github/acme/widget")
	if status != fiber.StatusOK || !strings.Contains(body, "deadbeef") {
		t.Fatalf("cached page must be served by the static layer, got %d", status)
	}
}

func TestListEndpoint(t *testing.T) {
	srv := newTestServer(t, serverOptions{manifest: "rails 7.1.0\nrake 13.0.6\n"})
	status, body, _ := srv.get(t, "/list/gems?letter=r")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var payload listingPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if payload.Family != "gems" || len(payload.Entries) != 2 || payload.Entries[0].Versions[0] != "7.1.0" {
		t.Fatalf("unexpected listing: %+v", payload)
	}
	if status, _, _ := srv.get(t, "/list/nope"); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown family, got %d", status)
	}
}

func TestLegacyRedirects(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	cases := map[string]string{
		"/":                          "/gems",
		"/docs":                      "/github",
		"/docs/lsegal-yard":          "/github/lsegal/yard",
		"/docs/rails/file:README":    "/gems/rails/file/README",
		"/docs/lsegal-yard/frames/x": "/github/lsegal/yard/frames/x",
	}
	for path, want := range cases {
		status, _, header := srv.get(t, path)
		if status != fiber.StatusFound || header.Get("Location") != want {
			t.Fatalf("%s: expected 302 to %s, got %d %s", path, want, status, header.Get("Location"))
		}
	}
}

func TestLegacyLocation(t *testing.T) {
	cases := map[string]string{
		"":                         "/github",
		"rack":                     "/gems/rack",
		"foo-bar-baz":              "/github/foo-bar/baz",
		"yard/frames/file:LICENSE": "/gems/yard/frames/file/LICENSE",
		"acme-widget/file:HISTORY": "/github/acme/widget/file/HISTORY",
		"trailing-":                "/gems/trailing-",
	}
	for input, want := range cases {
		if got := LegacyLocation(input); got != want {
			t.Fatalf("LegacyLocation(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDiagnosticsEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	status, body, _ := srv.get(t, "/-/modules")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var payload struct {
		Modules  []modulePayload `json:"modules"`
		Families []familyPayload `json:"families"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode modules: %v", err)
	}
	if len(payload.Families) != 2 || payload.Families[0].Family != "gems" {
		t.Fatalf("unexpected families: %+v", payload.Families)
	}

	status, body, _ = srv.get(t, "/-/modules/github")
	if status != fiber.StatusOK || !strings.Contains(body, `"enabled":true`) {
		t.Fatalf("expected enabled github module, got %d %s", status, body)
	}
	if status, _, _ = srv.get(t, "/-/modules/unknown"); status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}

	_ = srv.postCheckout(t, url.Values{"scheme": {"hg"}, "url": {"hg://host/a/b"}})
	status, body, _ = srv.get(t, "/-/metrics")
	if status != fiber.StatusOK || !strings.Contains(body, "checkout_requests_total") {
		t.Fatalf("expected prometheus output, got %d %s", status, body)
	}
}

func gzippedTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(tarBuf.Bytes()); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return out.Bytes()
}
