package library

import (
	"sort"
	"strings"
)

// Origin 描述一个版本的来源。
type Origin string

const (
	OriginLocal         Origin = "local"
	OriginRemotePackage Origin = "remote_package"
	OriginScmCheckout   Origin = "scm_checkout"
)

// Identity 唯一标识一个文档项目（不含版本）。远程包没有 Owner。
type Identity struct {
	Owner string
	Name  string
}

// NewIdentity 构造 Identity 并去除首尾空白。
func NewIdentity(owner, name string) Identity {
	return Identity{Owner: strings.TrimSpace(owner), Name: strings.TrimSpace(name)}
}

// String 返回 owner/name（SCM）或 name（远程包）。
func (id Identity) String() string {
	if id.Owner == "" {
		return id.Name
	}
	return id.Owner + "/" + id.Name
}

// IsZero 表示 Identity 未设置名称。
func (id Identity) IsZero() bool {
	return id.Name == ""
}

// Version 是某个 Identity 的一个已知版本。值类型，创建后不再修改；
// 同一 Identity 在新 commit 上的 checkout 会产生新的 Version。
type Version struct {
	Identity   Identity
	Version    string
	SourcePath string
	Origin     Origin
}

// Ready 表示文档产物已存在于磁盘，可以直接渲染。
func (v Version) Ready() bool {
	return v.SourcePath != ""
}

// Entry 聚合一个 Identity 的全部版本，供索引页与列表接口使用。
type Entry struct {
	Identity Identity
	Versions []Version
}

// Registry 查询某个来源族的已知版本。
type Registry interface {
	// Find 返回 identity 的全部版本，未知时返回空切片。
	Find(id Identity) []Version
	// All 返回按 identity 排序的全部条目。
	All() []Entry
}

// Lookup 在 versions 中查找 version 完全相等的记录。
func Lookup(versions []Version, version string) (Version, bool) {
	for _, v := range versions {
		if v.Version == version {
			return v, true
		}
	}
	return Version{}, false
}

// FilterByLetter 按名称首字母（不区分大小写）过滤条目；letter 为空时原样返回。
func FilterByLetter(entries []Entry, letter string) []Entry {
	letter = strings.ToLower(strings.TrimSpace(letter))
	if letter == "" {
		return entries
	}
	result := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(strings.ToLower(entry.Identity.Name), letter) {
			result = append(result, entry)
		}
	}
	return result
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Identity, entries[j].Identity
		if !strings.EqualFold(a.Owner, b.Owner) {
			return strings.ToLower(a.Owner) < strings.ToLower(b.Owner)
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}
