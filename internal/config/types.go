package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的文档族（URL 前缀），与 docmodule 注册的模块键一一对应。
const (
	FamilyGems   = "gems"
	FamilyGitHub = "github"
)

// Checkout 调度模式。
const (
	CheckoutModePool    = "pool"
	CheckoutModeProcess = "process"
)

// GlobalConfig 描述进程级运行参数，启动时加载一次，之后只读。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	Environment   string `mapstructure:"Environment"`
	Caching       bool   `mapstructure:"Caching"`
	SiteTitle     string `mapstructure:"SiteTitle"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	PublicPath   string `mapstructure:"PublicPath"`
	ReposPath    string `mapstructure:"ReposPath"`
	TmpPath      string `mapstructure:"TmpPath"`
	PackagesPath string `mapstructure:"PackagesPath"`

	PackageManifest string   `mapstructure:"PackageManifest"`
	PackageSource   string   `mapstructure:"PackageSource"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// CheckoutConfig 控制 checkout 任务的调度与抓取工具。
type CheckoutConfig struct {
	Mode      string   `mapstructure:"Mode"`
	Workers   int      `mapstructure:"Workers"`
	QueueSize int      `mapstructure:"QueueSize"`
	Timeout   Duration `mapstructure:"Timeout"`
	GitDepth  int      `mapstructure:"GitDepth"`
	SvnBinary string   `mapstructure:"SvnBinary"`
}

// JanitorConfig 控制残留暂存目录的定期清理。Interval 为 0 时不启动。
type JanitorConfig struct {
	Interval   Duration `mapstructure:"Interval"`
	StaleAfter Duration `mapstructure:"StaleAfter"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Families []string       `mapstructure:"Families"`
	Checkout CheckoutConfig `mapstructure:"Checkout"`
	Janitor  JanitorConfig  `mapstructure:"Janitor"`
}

// FamilyEnabled 判断某个文档族是否在配置中启用。
func (c *Config) FamilyEnabled(family string) bool {
	if c == nil {
		return false
	}
	family = strings.ToLower(strings.TrimSpace(family))
	for _, f := range c.Families {
		if f == family {
			return true
		}
	}
	return false
}

// CachingEnvironment 返回某个运行环境是否默认开启渲染缓存（staging/production）。
func CachingEnvironment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "staging", "production":
		return true
	default:
		return false
	}
}
