package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/any-hub/doc-hub/internal/checkout"
	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/generator"
	"github.com/any-hub/doc-hub/internal/logging"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("DOC_HUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOut.(*bytes.Buffer).String(), "doc-hub") {
		t.Fatalf("version 输出应包含 doc-hub 标识")
	}
}

func TestParseCLIFlagsDefaultPath(t *testing.T) {
	t.Setenv("DOC_HUB_CONFIG", "")
	opts, err := parseCLIFlags([]string{"-check-config"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" || !opts.checkOnly {
		t.Fatalf("默认配置路径错误: %+v", opts)
	}
	if _, err := parseCLIFlags([]string{"--unknown"}); err == nil {
		t.Fatalf("未知参数应报错")
	}
}

func TestLoadDotEnvSetsMissingVariables(t *testing.T) {
	useBufferWriters(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DOC_HUB_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Setenv("DOC_HUB_TEST_DOTENV", "")
	os.Unsetenv("DOC_HUB_TEST_DOTENV")

	loadDotEnv(path)
	if got := os.Getenv("DOC_HUB_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("应从 .env 读取变量，得到 %q", got)
	}

	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	if stdErrBuffer().Len() != 0 {
		t.Fatalf(".env 不存在时不应输出错误: %s", stdErrBuffer().String())
	}
}

func TestNewDispatcherByMode(t *testing.T) {
	cfg, err := config.Load(configFixture(t, "valid.toml"))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	gen := generator.NewMarkdown()

	dispatcher, err := newDispatcher(cfg, "valid.toml", gen, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("pool 模式失败: %v", err)
	}
	if _, ok := dispatcher.(*checkout.Pool); !ok {
		t.Fatalf("pool 模式应返回 *checkout.Pool，得到 %T", dispatcher)
	}
	_ = dispatcher.Stop(context.Background())

	cfg.Checkout.Mode = config.CheckoutModeProcess
	dispatcher, err = newDispatcher(cfg, "valid.toml", gen, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("process 模式失败: %v", err)
	}
	if _, ok := dispatcher.(*checkout.Process); !ok {
		t.Fatalf("process 模式应返回 *checkout.Process，得到 %T", dispatcher)
	}
}
