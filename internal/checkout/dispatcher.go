package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/logging"
)

// Dispatcher 把已校验的请求交给后台执行并立即返回。
type Dispatcher interface {
	Dispatch(req Request) error
	Stop(ctx context.Context) error
}

// Pool 是进程内的有界队列 + 固定数量 worker。每个任务在独立的超时 context 下运行，
// Stop 会取消正在运行的任务并丢弃尚未开始的任务。
type Pool struct {
	runner  Runner
	timeout time.Duration
	logger  *logrus.Logger

	jobs   chan Request
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool 启动 workers 个后台 goroutine。
func NewPool(runner Runner, workers, queueSize int, timeout time.Duration, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		jobs:    make(chan Request, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

func (p *Pool) Dispatch(req Request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop 停止接收新任务并取消运行中的任务，等待 worker 退出或 ctx 结束。
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for req := range p.jobs {
		if p.ctx.Err() != nil {
			p.logger.WithFields(logging.CheckoutFields("checkout_dropped", req.Identity().String(), string(req.Scheme), req.URL, req.Commit)).
				Warn("checkout_dropped_on_stop")
			continue
		}
		p.runOne(req)
	}
}

func (p *Pool) runOne(req Request) {
	ctx := p.ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	// worker 的错误已在 Runner 内记录日志与失败标记。
	_ = p.runner.Run(ctx, req)
}
