package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是所有环境变量覆盖项的前缀，例如 DOC_HUB_LISTENPORT。
const EnvPrefix = "DOC_HUB"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// Caching 未显式配置时根据运行环境推导。
	if !v.IsSet("Caching") {
		cfg.Global.Caching = CachingEnvironment(cfg.Global.Environment)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCheckoutDefaults(&cfg.Checkout)
	cfg.Families = normalizeFamilies(cfg.Families)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := absolutizePaths(&cfg.Global); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("Environment", "development")
	v.SetDefault("SiteTitle", "doc-hub")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("PublicPath", "./public")
	v.SetDefault("ReposPath", "./repos")
	v.SetDefault("TmpPath", "./tmp")
	v.SetDefault("PackagesPath", "./packages")
	v.SetDefault("PackageManifest", "./remote_gems")
	v.SetDefault("PackageSource", "https://rubygems.org/downloads/{name}-{version}.gem")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("Families", []string{FamilyGems, FamilyGitHub})
	v.SetDefault("Checkout.Mode", CheckoutModePool)
	v.SetDefault("Checkout.Workers", 2)
	v.SetDefault("Checkout.QueueSize", 32)
	v.SetDefault("Checkout.Timeout", "30m")
	v.SetDefault("Checkout.GitDepth", 0)
	v.SetDefault("Checkout.SvnBinary", "svn")
	v.SetDefault("Janitor.Interval", "1h")
	v.SetDefault("Janitor.StaleAfter", "24h")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	g.Environment = strings.ToLower(strings.TrimSpace(g.Environment))
}

func applyCheckoutDefaults(c *CheckoutConfig) {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = CheckoutModePool
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.Timeout.DurationValue() == 0 {
		c.Timeout = Duration(30 * time.Minute)
	}
	if strings.TrimSpace(c.SvnBinary) == "" {
		c.SvnBinary = "svn"
	}
}

func normalizeFamilies(families []string) []string {
	seen := make(map[string]struct{}, len(families))
	result := make([]string, 0, len(families))
	for _, f := range families {
		key := strings.ToLower(strings.TrimSpace(f))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result
}

func absolutizePaths(g *GlobalConfig) error {
	for _, target := range []*string{&g.PublicPath, &g.ReposPath, &g.TmpPath, &g.PackagesPath, &g.PackageManifest} {
		abs, err := filepath.Abs(*target)
		if err != nil {
			return fmt.Errorf("无法解析目录 %s: %w", *target, err)
		}
		*target = abs
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
