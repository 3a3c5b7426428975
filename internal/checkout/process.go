package checkout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// WorkerArgs 构造 "doc-hub worker" 子命令参数，main 中的 worker 入口以同样的 flag 解析。
func WorkerArgs(configPath string, req Request) []string {
	args := []string{"worker", "-config", configPath, "-scheme", string(req.Scheme), "-url", req.URL}
	if req.Commit != "" {
		args = append(args, "-commit", req.Commit)
	}
	return args
}

// Process 为每个请求启动一个独立的 worker 进程。worker 进程与服务进程之间
// 没有任何通信通道，结果只通过发布目录与失败标记体现。
type Process struct {
	executable string
	configPath string
	logger     *logrus.Logger
	start      func(*exec.Cmd) error
}

// NewProcess 构造进程调度器。executable 为空时使用当前可执行文件。
func NewProcess(executable, configPath string, logger *logrus.Logger) (*Process, error) {
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		executable = exe
	}
	if configPath == "" {
		return nil, errors.New("config path is required for detached workers")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Process{
		executable: executable,
		configPath: configPath,
		logger:     logger,
		start:      startDetached,
	}, nil
}

func (p *Process) Dispatch(req Request) error {
	cmd := exec.Command(p.executable, WorkerArgs(p.configPath, req)...)
	detach(cmd)
	if err := p.start(cmd); err != nil {
		return fmt.Errorf("launch worker: %w", err)
	}
	return nil
}

// Stop 不终止已启动的 worker：它们独立于服务进程的生命周期，并各自执行超时。
func (p *Process) Stop(context.Context) error {
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	// 回收子进程，避免长期运行的服务进程积累僵尸进程。
	go func() { _ = cmd.Wait() }()
	return nil
}
