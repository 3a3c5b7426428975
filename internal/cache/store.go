package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理渲染缓存的读写。磁盘布局遵循：
//
//	<PublicPath>/<request path>.html
//
// 每个条目仅由一个 HTML 文件组成，ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key string) (*ReadResult, error)

	// Put 写入渲染结果。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件。
	Put(ctx context.Context, key string, body io.Reader) (*Entry, error)

	// Remove 删除缓存文件，供运维手动失效使用。
	Remove(ctx context.Context, key string) error

	// Path 返回 key 对应的磁盘路径，不检查文件是否存在。
	Path(key string) (string, error)
}

// Entry 表示一个缓存文件的描述信息。
type Entry struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于静态层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidKey 表示请求路径试图逃逸缓存根目录。
var ErrInvalidKey = errors.New("invalid cache key")
