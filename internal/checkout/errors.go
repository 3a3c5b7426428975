package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScheme 表示 scheme 不受支持或 URL 缺少 "scheme://" 前缀。
	ErrInvalidScheme = errors.New("INVALIDSCHEME")
	// ErrMalformedPayload 表示 webhook payload 无法解析或缺少 repository.url。
	ErrMalformedPayload = errors.New("malformed checkout payload")
	// ErrQueueFull 表示进程内队列已满，请求被拒绝。
	ErrQueueFull = errors.New("checkout queue is full")
	// ErrStopped 表示调度器已停止。
	ErrStopped = errors.New("checkout dispatcher stopped")
	// ErrBusy 表示同一 identity 正在被其他 worker 处理。
	ErrBusy = errors.New("checkout already in progress")
)

// Kind 是 worker 失败分类，仅用于运维诊断，对外都表现为失败标记。
type Kind string

const (
	KindFetchFailed Kind = "FETCH_FAILED"
	KindBuildFailed Kind = "BUILD_FAILED"
)

// FetchError 表示拉取工作树失败（网络、鉴权、仓库不存在、ref 未知）。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }
func (e *FetchError) Kind() Kind    { return KindFetchFailed }

// BuildError 表示工作树已拉取但文档生成或发布失败。
type BuildError struct {
	Revision string
	Err      error
}

func (e *BuildError) Error() string { return fmt.Sprintf("build %s: %v", e.Revision, e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }
func (e *BuildError) Kind() Kind    { return KindBuildFailed }

// KindOf 返回 err 链上的失败分类，未分类时返回空字符串。
func KindOf(err error) Kind {
	var kinded interface{ Kind() Kind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ""
}
