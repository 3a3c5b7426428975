package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const checkoutsDir = ".checkouts"

// ScmLayout 描述 SCM 项目在 ReposPath 下的目录布局：
//
//	<ReposPath>/.checkouts/<owner>/<target>   工作树（fetch/update 的目标）
//	<ReposPath>/<owner>/<name>/.stage-*       构建中的临时目录
//	<ReposPath>/<owner>/<name>/<commit>       已发布的文档（注册表的唯一事实来源）
type ScmLayout struct {
	Root string
}

// ProjectDir 返回某个项目的发布根目录。
func (l ScmLayout) ProjectDir(id Identity) string {
	return filepath.Join(l.Root, id.Owner, id.Name)
}

// PublishedDir 返回某个 commit 的发布目录。
func (l ScmLayout) PublishedDir(id Identity, commit string) string {
	return filepath.Join(l.ProjectDir(id), commit)
}

// WorkTree 返回 owner/target 对应的工作树目录。相同 URL 的重复请求指向同一目录。
func (l ScmLayout) WorkTree(owner, target string) string {
	return filepath.Join(l.Root, checkoutsDir, owner, target)
}

// ValidSegment 判断一个路径片段（owner/name/commit）能否安全地映射为目录名。
func ValidSegment(s string) bool {
	return validSegment(s)
}

// ScmRegistry 每次读取都重新扫描发布目录，不在内存中缓存结果，
// 避免 worker 完成后请求进程读到过期状态。
type ScmRegistry struct {
	layout ScmLayout
}

// NewScmRegistry 构造基于目录布局的 SCM 注册表。
func NewScmRegistry(layout ScmLayout) *ScmRegistry {
	return &ScmRegistry{layout: layout}
}

// Layout 返回注册表使用的目录布局。
func (r *ScmRegistry) Layout() ScmLayout {
	return r.layout
}

func (r *ScmRegistry) Find(id Identity) []Version {
	if r == nil || !validSegment(id.Owner) || !validSegment(id.Name) {
		return nil
	}
	return r.scanProject(id)
}

func (r *ScmRegistry) All() []Entry {
	if r == nil {
		return nil
	}
	var entries []Entry
	for _, owner := range listDirs(r.layout.Root) {
		for _, name := range listDirs(filepath.Join(r.layout.Root, owner.name)) {
			id := Identity{Owner: owner.name, Name: name.name}
			versions := r.scanProject(id)
			if len(versions) == 0 {
				continue
			}
			entries = append(entries, Entry{Identity: id, Versions: versions})
		}
	}
	sortEntries(entries)
	return entries
}

func (r *ScmRegistry) scanProject(id Identity) []Version {
	dirs := listDirs(r.layout.ProjectDir(id))
	if len(dirs) == 0 {
		return nil
	}
	// 最近发布的版本排在最前，作为默认版本。
	sort.SliceStable(dirs, func(i, j int) bool {
		if !dirs[i].modTime.Equal(dirs[j].modTime) {
			return dirs[i].modTime.After(dirs[j].modTime)
		}
		return dirs[i].name < dirs[j].name
	})
	versions := make([]Version, 0, len(dirs))
	for _, d := range dirs {
		versions = append(versions, Version{
			Identity:   id,
			Version:    d.name,
			SourcePath: r.layout.PublishedDir(id, d.name),
			Origin:     OriginScmCheckout,
		})
	}
	return versions
}

type dirInfo struct {
	name    string
	modTime time.Time
}

// listDirs 返回 dir 下所有非隐藏子目录；目录不存在时返回 nil。
func listDirs(dir string) []dirInfo {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	result := make([]dirInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, dirInfo{name: entry.Name(), modTime: info.ModTime()})
	}
	return result
}
