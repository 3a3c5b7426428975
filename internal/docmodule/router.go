package docmodule

import (
	"strings"

	"github.com/any-hub/doc-hub/internal/library"
)

// SegmentRouter 按路径段解析 Ref：前 OwnerSegments 段为 owner，随后一段为名称，
// 再下一段仅在命中已知版本时作为版本，其余部分为页面。
type SegmentRouter struct {
	OwnerSegments int
}

func (r SegmentRouter) Parse(rest string, registry library.Registry) (Ref, bool) {
	segments := splitPath(rest)
	need := r.OwnerSegments + 1
	if len(segments) < need {
		return Ref{}, false
	}

	id := library.Identity{
		Owner: strings.Join(segments[:r.OwnerSegments], "/"),
		Name:  segments[r.OwnerSegments],
	}
	ref := Ref{Identity: id}
	remaining := segments[need:]

	if len(remaining) > 0 && registry != nil {
		if _, ok := library.Lookup(registry.Find(id), remaining[0]); ok {
			ref.Version = remaining[0]
			remaining = remaining[1:]
		}
	}
	ref.Page = strings.Join(remaining, "/")
	return ref, true
}

func splitPath(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
