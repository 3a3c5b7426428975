package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/cache"
	"github.com/any-hub/doc-hub/internal/checkout"
	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/fetch"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/janitor"
	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/metrics"
	"github.com/any-hub/doc-hub/internal/server"
	"github.com/any-hub/doc-hub/internal/server/routes"
	"github.com/any-hub/doc-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

const shutdownTimeout = 10 * time.Second

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	loadDotEnv(".env")

	args := os.Args[1:]
	if len(args) > 0 && args[0] == workerCommand {
		os.Exit(runWorker(args[1:]))
	}

	opts, err := parseCLIFlags(args)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// loadDotEnv 把 .env 中的变量注入环境（不覆盖已有值），文件不存在时忽略。
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stdErr, "读取 %s 失败: %v\n", path, err)
	}
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["families"] = cfg.Families
		fields["checkout_mode"] = cfg.Checkout.Mode
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, opts.configPath, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// serve 遵循“配置 → 渲染缓存 → 文档族 → checkout 调度 → Fiber server”顺序装配，
// 所有请求共享同一组实例。
func serve(ctx context.Context, cfg *config.Config, configPath string, logger *logrus.Logger) error {
	recorder := metrics.NewPrometheusRecorder(nil)

	store, err := cache.NewStore(cfg.Global.PublicPath)
	if err != nil {
		return fmt.Errorf("初始化渲染缓存目录失败: %w", err)
	}
	publisher := cache.NewPublisher(store, cfg.Global.Caching, logger, recorder)
	gen := generator.NewMarkdown()

	families, err := server.NewFamilyRegistry(cfg, docmodule.Deps{
		Generator:  gen,
		Publisher:  publisher,
		Recorder:   recorder,
		Logger:     logger,
		HTTPClient: fetch.NewHTTPClient(cfg),
	})
	if err != nil {
		return fmt.Errorf("构建文档族失败: %w", err)
	}

	dispatcher, err := newDispatcher(cfg, configPath, gen, logger, recorder)
	if err != nil {
		return fmt.Errorf("初始化 checkout 调度器失败: %w", err)
	}
	orch := checkout.NewOrchestrator(dispatcher, logger, recorder)
	status := checkout.NewStatusResolver(families.ScmRegistry(cfg), checkout.NewMarkerStore(cfg.Global.TmpPath))

	sweeper := janitor.New(janitor.Targets(cfg), cfg.Janitor.StaleAfter.DurationValue(), logger)
	if interval := cfg.Janitor.Interval.DurationValue(); interval > 0 {
		if err := sweeper.Start(interval); err != nil {
			return err
		}
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		Families:  families,
		Cache:     store,
		SiteTitle: cfg.Global.SiteTitle,
	})
	if err != nil {
		return err
	}
	routes.RegisterCheckoutRoutes(app, orch, status, logger)
	routes.RegisterModuleRoutes(app, families)
	routes.RegisterMetricsRoute(app, recorder.Handler())
	routes.RegisterDocRoutes(app, routes.DocOptions{
		Families:  families,
		Publisher: publisher,
		Logger:    logger,
		SiteTitle: cfg.Global.SiteTitle,
	})

	fields := logging.BaseFields("startup", configPath)
	fields["families"] = cfg.Families
	fields["listen_port"] = cfg.Global.ListenPort
	fields["caching"] = cfg.Global.Caching
	fields["checkout_mode"] = cfg.Checkout.Mode
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	listenErr := app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort), fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("checkout 调度器未能及时停止")
	}
	if err := sweeper.Stop(); err != nil {
		logger.WithError(err).Warn("janitor 停止失败")
	}
	logger.WithField("action", "shutdown").Info("服务已停止")
	return listenErr
}

// newDispatcher 按 Checkout.Mode 选择进程内队列或独立 worker 进程。
func newDispatcher(cfg *config.Config, configPath string, gen generator.Generator, logger *logrus.Logger, recorder metrics.Recorder) (checkout.Dispatcher, error) {
	switch cfg.Checkout.Mode {
	case config.CheckoutModeProcess:
		return checkout.NewProcess("", configPath, logger)
	default:
		worker := checkout.NewWorkerFromConfig(cfg, gen, logger, recorder)
		return checkout.NewPool(worker, cfg.Checkout.Workers, cfg.Checkout.QueueSize, cfg.Checkout.Timeout.DurationValue(), logger), nil
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("doc-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 DOC_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	return cliOptions{
		configPath:  resolveConfigPath(configFlag),
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func resolveConfigPath(flagValue string) string {
	path := os.Getenv("DOC_HUB_CONFIG")
	if flagValue != "" {
		path = flagValue
	}
	if path == "" {
		path = "config.toml"
	}
	return path
}
