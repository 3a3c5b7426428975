package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/any-hub/doc-hub/internal/library"
)

// ErrPackageNotFound 表示上游不存在该包版本。
var ErrPackageNotFound = errors.New("package archive not found upstream")

// PackageFetcher 下载远程包归档并解包到 PackagesPath/<name>/<version>/source。
type PackageFetcher struct {
	client *http.Client
	source string
	layout library.PackageLayout
}

// NewPackageFetcher 构造远程包下载器，source 为包含 {name}/{version} 占位符的 URL 模板。
func NewPackageFetcher(client *http.Client, source string, layout library.PackageLayout) *PackageFetcher {
	if client == nil {
		client = NewHTTPClient(nil)
	}
	return &PackageFetcher{client: client, source: source, layout: layout}
}

// URL 根据模板生成下载地址。
func (f *PackageFetcher) URL(name, version string) string {
	return strings.NewReplacer("{name}", name, "{version}", version).Replace(f.source)
}

// Fetch 确保包源码存在于磁盘并返回其目录。已存在时不会重复下载。
func (f *PackageFetcher) Fetch(ctx context.Context, name, version string) (string, error) {
	sourceDir := f.layout.SourceDir(name, version)
	if info, err := os.Stat(sourceDir); err == nil && info.IsDir() {
		return sourceDir, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	versionDir := f.layout.VersionDir(name, version)
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return "", err
	}
	staging := filepath.Join(versionDir, ".source-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	url := f.URL(name, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrPackageNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := Extract(ctx, resp.Body, staging); err != nil {
		return "", fmt.Errorf("unpack %s: %w", url, err)
	}
	if err := os.Rename(staging, sourceDir); err != nil {
		// 并发请求已完成解包时以已有目录为准。
		if info, statErr := os.Stat(sourceDir); statErr == nil && info.IsDir() {
			return sourceDir, nil
		}
		return "", err
	}
	return sourceDir, nil
}
