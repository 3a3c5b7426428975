package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/any-hub/doc-hub/internal/checkout"
	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/logging"
)

// workerCommand 是 process 调度模式下 detached worker 的子命令名，参数由 checkout.WorkerArgs 生成。
const workerCommand = "worker"

const workerLogName = "checkout-worker.log"

// workerLogPath 为每个 identity 使用独立的日志文件，与失败标记放在一起。
func workerLogPath(tmpPath string, req checkout.Request) string {
	if req.Validate() != nil {
		return filepath.Join(tmpPath, workerLogName)
	}
	id := req.Identity()
	return filepath.Join(tmpPath, id.Owner, id.Name+".log")
}

type workerOptions struct {
	configPath string
	scheme     string
	url        string
	commit     string
}

func parseWorkerFlags(args []string) (workerOptions, error) {
	fs := flag.NewFlagSet("doc-hub worker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts workerOptions
	var configFlag string
	fs.StringVar(&configFlag, "config", "", "配置文件路径")
	fs.StringVar(&opts.scheme, "scheme", "", "git 或 svn")
	fs.StringVar(&opts.url, "url", "", "仓库地址")
	fs.StringVar(&opts.commit, "commit", "", "可选的提交/修订号")

	if err := fs.Parse(args); err != nil {
		return workerOptions{}, fmt.Errorf("解析 worker 参数失败: %w", err)
	}
	if opts.url == "" {
		return workerOptions{}, fmt.Errorf("worker 需要 -url")
	}
	opts.configPath = resolveConfigPath(configFlag)
	return opts, nil
}

// runWorker 在独立进程中执行一次 checkout，自行执行 Checkout.Timeout。
// 结果只体现在发布目录与失败标记上，退出码仅供排查。
func runWorker(args []string) int {
	opts, err := parseWorkerFlags(args)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	req := checkout.NewRequest(checkout.Scheme(opts.scheme), opts.url, opts.commit)
	logger, err := logging.InitWorkerLogger(cfg.Global, workerLogPath(cfg.Global.TmpPath, req))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Checkout.Timeout.DurationValue())
	defer cancel()

	worker := checkout.NewWorkerFromConfig(cfg, generator.NewMarkdown(), logger, nil)
	if err := worker.Run(ctx, req); err != nil {
		return 1
	}
	return 0
}
