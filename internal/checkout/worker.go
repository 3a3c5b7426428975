package checkout

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/fetch"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/library"
	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/metrics"
)

const stagePrefix = ".stage-"

// Runner 执行一次 checkout 任务。
type Runner interface {
	Run(ctx context.Context, req Request) error
}

// Worker 执行 fetch → generate → publish，失败时写入失败标记。
type Worker struct {
	layout    library.ScmLayout
	markers   *MarkerStore
	locks     identityLock
	fetchers  map[Scheme]fetch.Fetcher
	generator generator.Generator
	recorder  metrics.Recorder
	logger    *logrus.Logger
	now       func() time.Time
}

// NewWorker 构造 worker。reposPath 为发布根目录，tmpPath 存放失败标记与锁。
func NewWorker(reposPath, tmpPath string, fetchers map[Scheme]fetch.Fetcher, gen generator.Generator, logger *logrus.Logger, recorder metrics.Recorder) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		layout:    library.ScmLayout{Root: reposPath},
		markers:   NewMarkerStore(tmpPath),
		locks:     identityLock{root: tmpPath},
		fetchers:  fetchers,
		generator: gen,
		recorder:  metrics.OrNoop(recorder),
		logger:    logger,
		now:       time.Now,
	}
}

// NewWorkerFromConfig 使用 go-git 与 svn 命令行构造 worker。
func NewWorkerFromConfig(cfg *config.Config, gen generator.Generator, logger *logrus.Logger, recorder metrics.Recorder) *Worker {
	fetchers := map[Scheme]fetch.Fetcher{
		SchemeGit: fetch.NewGit(cfg.Checkout.GitDepth),
		SchemeSvn: fetch.NewSvn(cfg.Checkout.SvnBinary),
	}
	return NewWorker(cfg.Global.ReposPath, cfg.Global.TmpPath, fetchers, gen, logger, recorder)
}

// Markers 返回 worker 使用的失败标记存储。
func (w *Worker) Markers() *MarkerStore {
	return w.markers
}

// Run 在 identity 锁内执行任务。返回的错误仅供日志使用，结果通过文件系统对外可见。
func (w *Worker) Run(ctx context.Context, req Request) error {
	started := w.now()
	id := req.Identity()
	fields := logging.CheckoutFields("checkout_job", id.String(), string(req.Scheme), req.URL, req.Commit)

	// 无效请求没有可安全落盘的 identity，不写失败标记。
	if err := req.Validate(); err != nil {
		w.logger.WithFields(fields).WithError(err).Warn("checkout_rejected")
		return err
	}

	version, err := w.run(ctx, req)
	elapsed := w.now().Sub(started)
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindFetchFailed
		}
		if markErr := w.markers.Write(id, kind, err, w.now()); markErr != nil {
			w.logger.WithFields(fields).WithError(markErr).Error("checkout_marker_failed")
		}
		w.recorder.ObserveCheckoutJob(outcomeLabel(kind), elapsed)
		w.logger.WithFields(fields).WithError(err).WithFields(logrus.Fields{
			"kind":        kind,
			"duration_ms": elapsed.Milliseconds(),
		}).Warn("checkout_failed")
		return err
	}

	w.recorder.ObserveCheckoutJob("success", elapsed)
	w.logger.WithFields(fields).WithFields(logrus.Fields{
		"version":     version,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("checkout_published")
	return nil
}

func (w *Worker) run(ctx context.Context, req Request) (string, error) {
	fetcher, ok := w.fetchers[req.Scheme]
	if !ok {
		return "", &FetchError{URL: req.URL, Err: fmt.Errorf("no fetcher for scheme %s", req.Scheme)}
	}

	id := req.Identity()
	release, err := w.locks.acquire(ctx, id)
	if err != nil {
		return "", &FetchError{URL: req.URL, Err: err}
	}
	defer release()

	worktree := w.layout.WorkTree(req.Owner, req.Target)
	res, err := fetcher.Fetch(ctx, fetch.Request{URL: req.URL, Ref: req.Commit, Dir: worktree})
	if err != nil {
		return "", &FetchError{URL: req.URL, Err: err}
	}

	version := req.Commit
	if version == "" {
		version = res.Revision
	}
	if !library.ValidSegment(version) {
		return "", &FetchError{URL: req.URL, Err: fmt.Errorf("unusable revision %q", version)}
	}

	if err := w.publish(ctx, id, version, worktree); err != nil {
		return version, &BuildError{Revision: version, Err: err}
	}
	if err := w.markers.Remove(id); err != nil {
		w.logger.WithError(err).WithField("identity", id.String()).Warn("checkout_marker_remove_failed")
	}
	return version, nil
}

// publish 先生成到 .stage-<uuid>，再 rename 到 <commit>。某个 commit 一旦发布就不再替换，
// 保证观察到的 SUCCESS 不会因为重复 checkout 而短暂消失。
func (w *Worker) publish(ctx context.Context, id library.Identity, version, worktree string) error {
	published := w.layout.PublishedDir(id, version)
	if info, err := os.Stat(published); err == nil && info.IsDir() {
		return nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	projectDir := w.layout.ProjectDir(id)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return err
	}
	staging := filepath.Join(projectDir, stagePrefix+uuid.NewString())
	defer os.RemoveAll(staging)

	if err := w.generator.Generate(ctx, worktree, staging, id.String()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(staging, published)
}

func outcomeLabel(kind Kind) string {
	switch kind {
	case KindBuildFailed:
		return "build_failed"
	default:
		return "fetch_failed"
	}
}
