package config

import (
	"errors"
	"fmt"
	"strings"
)

var supportedFamilies = map[string]struct{}{
	FamilyGems:   {},
	FamilyGitHub: {},
}

const supportedFamilyList = "gems|github"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	for field, value := range map[string]string{
		"Global.PublicPath":   g.PublicPath,
		"Global.ReposPath":    g.ReposPath,
		"Global.TmpPath":      g.TmpPath,
		"Global.PackagesPath": g.PackagesPath,
	} {
		if strings.TrimSpace(value) == "" {
			return newFieldError(field, "不能为空")
		}
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Families) == 0 {
		return errors.New("至少需要启用一个文档族")
	}
	for _, family := range c.Families {
		if _, ok := supportedFamilies[family]; !ok {
			return newFieldError(familyField(family), "仅支持 "+supportedFamilyList)
		}
	}
	if c.FamilyEnabled(FamilyGems) {
		if strings.TrimSpace(g.PackageManifest) == "" {
			return newFieldError("Global.PackageManifest", "启用 gems 时不能为空")
		}
		if err := validatePackageSource(g.PackageSource); err != nil {
			return fmt.Errorf("Global.PackageSource: %w", err)
		}
	}

	if err := c.Checkout.validate(); err != nil {
		return err
	}
	return c.Janitor.validate(c.Checkout)
}

// validate 要求 StaleAfter 大于单个 checkout 的超时，避免清理仍在运行任务的暂存目录。
func (j JanitorConfig) validate(checkout CheckoutConfig) error {
	if j.Interval.DurationValue() < 0 {
		return newFieldError("Janitor.Interval", "不能为负数")
	}
	if j.Interval.DurationValue() == 0 {
		return nil
	}
	if j.StaleAfter.DurationValue() <= checkout.Timeout.DurationValue() {
		return newFieldError("Janitor.StaleAfter", "必须大于 Checkout.Timeout")
	}
	return nil
}

func (c CheckoutConfig) validate() error {
	switch c.Mode {
	case CheckoutModePool, CheckoutModeProcess:
	default:
		return newFieldError("Checkout.Mode", "仅支持 pool/process")
	}
	if c.Workers <= 0 {
		return newFieldError("Checkout.Workers", "必须大于 0")
	}
	if c.QueueSize <= 0 {
		return newFieldError("Checkout.QueueSize", "必须大于 0")
	}
	if c.Timeout.DurationValue() <= 0 {
		return newFieldError("Checkout.Timeout", "必须大于 0")
	}
	if c.GitDepth < 0 {
		return newFieldError("Checkout.GitDepth", "不能为负数")
	}
	if strings.TrimSpace(c.SvnBinary) == "" {
		return newFieldError("Checkout.SvnBinary", "不能为空")
	}
	return nil
}

func validatePackageSource(raw string) error {
	if raw == "" {
		return errors.New("缺少包下载地址模板")
	}
	if !strings.Contains(raw, "{name}") || !strings.Contains(raw, "{version}") {
		return fmt.Errorf("模板必须包含 {name} 与 {version}: %s", raw)
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	return nil
}
