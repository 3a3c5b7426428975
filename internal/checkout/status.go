package checkout

import "github.com/any-hub/doc-hub/internal/library"

// Status 是某个 identity + commit 的 checkout 状态。
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// StatusResolver 只读取文件系统：SCM 注册表（每次重新扫描）与失败标记。
type StatusResolver struct {
	registry library.Registry
	markers  *MarkerStore
}

// NewStatusResolver 构造状态查询器。
func NewStatusResolver(registry library.Registry, markers *MarkerStore) *StatusResolver {
	return &StatusResolver{registry: registry, markers: markers}
}

// Status 先检查 SUCCESS：失败标记作用于 identity 而非 commit，不能遮蔽已发布的版本。
func (r *StatusResolver) Status(owner, project, commit string) Status {
	id := library.Identity{Owner: owner, Name: project}
	if !library.ValidSegment(owner) || !library.ValidSegment(project) {
		return StatusPending
	}
	if r.registry != nil {
		if _, ok := library.Lookup(r.registry.Find(id), commit); ok {
			return StatusSuccess
		}
	}
	if r.markers != nil && r.markers.Exists(id) {
		return StatusFailure
	}
	return StatusPending
}
