package fetch

import (
	"context"
	"errors"
)

// Request 描述一次 SCM 拉取：把 URL 在 Ref（为空表示最新）处检出到 Dir。
type Request struct {
	URL string
	Ref string
	Dir string
}

// Result 返回实际检出的修订号（git 为 commit hash，svn 为 revision）。
type Result struct {
	Revision string
}

// Fetcher 是 SCM 工具的统一接口，每个 scheme 一个实现。
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}

// ErrUnknownRef 表示请求的 ref 在远端不存在。
var ErrUnknownRef = errors.New("unknown ref")
