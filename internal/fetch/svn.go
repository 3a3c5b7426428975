package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmgilman/go/exec"
)

// Svn 通过 svn 命令行检出或更新工作树。
type Svn struct {
	Binary string
}

// NewSvn 构造 svn 拉取器，binary 为空时使用 PATH 中的 svn。
func NewSvn(binary string) *Svn {
	if binary == "" {
		binary = "svn"
	}
	return &Svn{Binary: binary}
}

func (s *Svn) Fetch(ctx context.Context, req Request) (Result, error) {
	rev := req.Ref
	if rev == "" {
		rev = "HEAD"
	}

	var args []string
	if _, err := os.Stat(filepath.Join(req.Dir, ".svn")); err == nil {
		args = []string{"update", "--non-interactive", "--force", "-r", rev, req.Dir}
	} else {
		if err := os.RemoveAll(req.Dir); err != nil {
			return Result{}, fmt.Errorf("remove stale worktree: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(req.Dir), 0o755); err != nil {
			return Result{}, err
		}
		args = []string{"checkout", "--non-interactive", "-r", rev, req.URL, req.Dir}
	}

	if _, err := s.command(ctx).Run(args...); err != nil {
		return Result{}, fmt.Errorf("svn %s %s: %w", args[0], req.URL, err)
	}

	result, err := s.command(ctx).Run("info", "--show-item", "revision", req.Dir)
	if err != nil {
		return Result{}, fmt.Errorf("svn info: %w", err)
	}
	return Result{Revision: strings.TrimSpace(result.Stdout)}, nil
}

// command 每次返回新的执行器：exec.Command 在 Run 之间保存本地状态，不能并发复用。
func (s *Svn) command(ctx context.Context) exec.Executor {
	return exec.NewWrapper(exec.New(exec.WithInheritEnv(), exec.WithDisableColors()), s.Binary).WithContext(ctx)
}
