// Package janitor 定期清理中断任务遗留的暂存目录与临时文件。
// 正常路径下暂存目录总是被 rename 或删除；只有进程被杀死时才会残留。
package janitor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/config"
)

// Target 描述一个需要清理的根目录：只检查 MaxDepth 层以内、名称带有 Prefixes 前缀的条目。
// MaxDepth 为 0 表示不限深度。
type Target struct {
	Root     string
	MaxDepth int
	Prefixes []string
}

// Janitor 按 StaleAfter 判断残留并删除。
type Janitor struct {
	targets    []Target
	staleAfter time.Duration
	logger     *logrus.Logger
	now        func() time.Time

	scheduler gocron.Scheduler
}

// Targets 返回与各组件暂存命名一致的清理目标。
func Targets(cfg *config.Config) []Target {
	g := cfg.Global
	return []Target{
		{Root: g.ReposPath, MaxDepth: 3, Prefixes: []string{".stage-"}},
		{Root: g.PackagesPath, MaxDepth: 3, Prefixes: []string{".source-", ".docs-"}},
		{Root: g.PublicPath, Prefixes: []string{".cache-"}},
	}
}

// New 构造 janitor。
func New(targets []Target, staleAfter time.Duration, logger *logrus.Logger) *Janitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Janitor{
		targets:    targets,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep 执行一次清理，返回删除的条目数。单个条目删除失败只记录日志。
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.staleAfter)
	removed := 0
	for _, target := range j.targets {
		n, err := j.sweepTarget(ctx, target, cutoff)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (j *Janitor) sweepTarget(ctx context.Context, target Target, cutoff time.Time) (int, error) {
	if target.Root == "" {
		return 0, nil
	}
	removed := 0
	err := filepath.WalkDir(target.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == target.Root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == target.Root {
			return nil
		}

		depth := strings.Count(filepath.ToSlash(strings.TrimPrefix(p, target.Root+string(filepath.Separator))), "/") + 1
		if hasPrefix(d.Name(), target.Prefixes) {
			info, infoErr := d.Info()
			if infoErr == nil && info.ModTime().Before(cutoff) {
				if rmErr := os.RemoveAll(p); rmErr != nil {
					j.logger.WithError(rmErr).WithField("path", p).Warn("janitor_remove_failed")
				} else {
					removed++
					j.logger.WithFields(logrus.Fields{"action": "janitor", "path": p}).Info("stale_entry_removed")
				}
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && (strings.HasPrefix(d.Name(), ".") || (target.MaxDepth > 0 && depth >= target.MaxDepth)) {
			return filepath.SkipDir
		}
		return nil
	})
	return removed, err
}

func hasPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Start 以 interval 周期调度 Sweep。上一轮未结束时跳过本轮。
func (j *Janitor) Start(interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.run),
		gocron.WithName("janitor-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to create janitor job: %w", err)
	}
	j.scheduler = s
	s.Start()
	j.logger.WithFields(logrus.Fields{
		"action":      "janitor",
		"interval":    interval.String(),
		"stale_after": j.staleAfter.String(),
	}).Info("janitor_started")
	return nil
}

// Stop 停止调度器，等待正在执行的清理结束。
func (j *Janitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	return j.scheduler.Shutdown()
}

func (j *Janitor) run() {
	removed, err := j.Sweep(context.Background())
	entry := j.logger.WithFields(logrus.Fields{"action": "janitor", "removed": removed})
	if err != nil {
		entry.WithError(err).Warn("janitor_sweep_failed")
		return
	}
	entry.Debug("janitor_sweep_done")
}
