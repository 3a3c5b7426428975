package checkout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/any-hub/doc-hub/internal/library"
)

const lockRetryDelay = 250 * time.Millisecond

// identityLock 是按 identity 划分的跨进程文件锁：同一 owner/name 同时只有一个
// worker 更新工作树与发布目录，无论它运行在服务进程内还是独立进程中。
type identityLock struct {
	root string
}

func (l identityLock) path(id library.Identity) string {
	return filepath.Join(l.root, "locks", id.Owner, id.Name+".lock")
}

// acquire 阻塞直到获得锁或 ctx 结束，返回释放函数。
func (l identityLock) acquire(ctx context.Context, id library.Identity) (func(), error) {
	p := l.path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(p)
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", p, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	return func() { _ = lock.Unlock() }, nil
}
