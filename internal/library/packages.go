package library

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PackageLayout 描述远程包在 PackagesPath 下的目录布局：
//
//	<PackagesPath>/<name>/<version>/source   解包后的源码
//	<PackagesPath>/<name>/<version>/docs     生成的文档
type PackageLayout struct {
	Root string
}

// VersionDir 返回某个包版本的根目录。
func (l PackageLayout) VersionDir(name, version string) string {
	return filepath.Join(l.Root, name, version)
}

// SourceDir 返回解包后的源码目录。
func (l PackageLayout) SourceDir(name, version string) string {
	return filepath.Join(l.VersionDir(name, version), "source")
}

// DocsDir 返回生成文档的目录。
func (l PackageLayout) DocsDir(name, version string) string {
	return filepath.Join(l.VersionDir(name, version), "docs")
}

// ManifestEntry 是清单中的一行：包名与其版本列表（首个为默认版本）。
type ManifestEntry struct {
	Name     string
	Versions []string
}

// ErrInvalidManifestLine 标记清单中被跳过的行或版本。
var ErrInvalidManifestLine = errors.New("invalid manifest line")

// ParseManifest 解析 "name version [version...]" 格式的包清单，忽略空行与 # 注释。
// 格式错误的行（或行内非法的版本）被跳过，其余条目照常返回；
// 跳过的内容汇总为包装 ErrInvalidManifestLine 的错误，读取失败时才返回 nil 条目。
func ParseManifest(r io.Reader) ([]ManifestEntry, error) {
	var (
		entries []ManifestEntry
		skipped []error
	)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if !validSegment(fields[0]) {
			skipped = append(skipped, fmt.Errorf("%w %d: invalid package name %q", ErrInvalidManifestLine, line, fields[0]))
			continue
		}
		versions := make([]string, 0, len(fields)-1)
		for _, v := range fields[1:] {
			if !validSegment(v) {
				skipped = append(skipped, fmt.Errorf("%w %d: invalid version %q of %s", ErrInvalidManifestLine, line, v, fields[0]))
				continue
			}
			versions = append(versions, v)
		}
		if len(versions) == 0 {
			skipped = append(skipped, fmt.Errorf("%w %d: package %q has no versions", ErrInvalidManifestLine, line, fields[0]))
			continue
		}
		entries = append(entries, ManifestEntry{Name: fields[0], Versions: versions})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, errors.Join(skipped...)
}

// LoadManifest 从文件读取包清单。
func LoadManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// PackageRegistry 保存启动时读取的远程包清单。清单本身不可变，
// SourcePath 按需从磁盘推导（首次渲染前为空）。
type PackageRegistry struct {
	layout   PackageLayout
	names    []string
	versions map[string][]string
}

// NewPackageRegistry 根据清单条目构建注册表。同名条目的版本会被合并并去重。
func NewPackageRegistry(layout PackageLayout, entries []ManifestEntry) *PackageRegistry {
	r := &PackageRegistry{
		layout:   layout,
		versions: make(map[string][]string, len(entries)),
	}
	for _, entry := range entries {
		existing, ok := r.versions[entry.Name]
		if !ok {
			r.names = append(r.names, entry.Name)
		}
		for _, v := range entry.Versions {
			if !containsString(existing, v) {
				existing = append(existing, v)
			}
		}
		r.versions[entry.Name] = existing
	}
	return r
}

// ErrManifestMissing 表示清单文件不存在，此时不提供远程包文档。
var ErrManifestMissing = errors.New("package manifest not found")

// OpenPackageRegistry 读取清单文件并构建注册表。文件不存在时返回空注册表与 ErrManifestMissing；
// 存在格式错误的行时返回由其余条目构成的注册表与 ErrInvalidManifestLine。
func OpenPackageRegistry(layout PackageLayout, manifestPath string) (*PackageRegistry, error) {
	entries, err := LoadManifest(manifestPath)
	switch {
	case err == nil:
		return NewPackageRegistry(layout, entries), nil
	case errors.Is(err, os.ErrNotExist):
		return NewPackageRegistry(layout, nil), fmt.Errorf("%w: %s", ErrManifestMissing, manifestPath)
	case errors.Is(err, ErrInvalidManifestLine):
		return NewPackageRegistry(layout, entries), fmt.Errorf("manifest %s: %w", manifestPath, err)
	default:
		return nil, fmt.Errorf("load manifest %s: %w", manifestPath, err)
	}
}

// Layout 返回注册表使用的目录布局。
func (r *PackageRegistry) Layout() PackageLayout {
	return r.layout
}

func (r *PackageRegistry) Find(id Identity) []Version {
	if r == nil || id.Owner != "" {
		return nil
	}
	names := r.versions[id.Name]
	if len(names) == 0 {
		return nil
	}
	result := make([]Version, 0, len(names))
	for _, v := range names {
		result = append(result, r.version(id.Name, v))
	}
	return result
}

func (r *PackageRegistry) All() []Entry {
	if r == nil {
		return nil
	}
	entries := make([]Entry, 0, len(r.names))
	for _, name := range r.names {
		id := Identity{Name: name}
		entries = append(entries, Entry{Identity: id, Versions: r.Find(id)})
	}
	sortEntries(entries)
	return entries
}

func (r *PackageRegistry) version(name, version string) Version {
	v := Version{
		Identity: Identity{Name: name},
		Version:  version,
		Origin:   OriginRemotePackage,
	}
	docs := r.layout.DocsDir(name, version)
	if info, err := os.Stat(docs); err == nil && info.IsDir() {
		v.SourcePath = docs
	}
	return v
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// validSegment 拒绝会逃逸目录布局的名称。
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." || strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
