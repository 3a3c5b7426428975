package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/library"
)

// FamilyRoute 将一个已启用的文档族与其模块元数据、适配器聚合在一起，
// 供路由层与诊断接口直接复用。
type FamilyRoute struct {
	// Key 同时是 URL 前缀（/gems、/github）与模块键。
	Key    string
	Module docmodule.ModuleMetadata
	// Adapter 在启动时构造一次，之后只读。
	Adapter *docmodule.Module
}

// FamilyRegistry 提供族键到 FamilyRoute 的查询能力，集合在启动时由配置确定。
type FamilyRegistry struct {
	routes  map[string]*FamilyRoute
	ordered []*FamilyRoute
}

// NewFamilyRegistry 根据配置中启用的 Families 构建适配器。调用方应在启动阶段创建一次并复用。
func NewFamilyRegistry(cfg *config.Config, deps docmodule.Deps) (*FamilyRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	deps.Config = cfg

	registry := &FamilyRegistry{
		routes: make(map[string]*FamilyRoute, len(cfg.Families)),
	}

	for _, family := range cfg.Families {
		key := normalizeFamily(family)
		if key == "" {
			return nil, errors.New("empty family name")
		}
		if _, exists := registry.routes[key]; exists {
			return nil, fmt.Errorf("duplicate family detected for %s", key)
		}

		route, err := buildFamilyRoute(key, deps)
		if err != nil {
			return nil, err
		}
		registry.routes[key] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// NewFamilyRegistryFromModules 直接由已构造的模块组装注册表，便于测试注入假注册表。
func NewFamilyRegistryFromModules(modules ...*docmodule.Module) *FamilyRegistry {
	registry := &FamilyRegistry{routes: make(map[string]*FamilyRoute, len(modules))}
	for _, mod := range modules {
		route := &FamilyRoute{Key: mod.Key(), Module: mod.Metadata(), Adapter: mod}
		registry.routes[route.Key] = route
		registry.ordered = append(registry.ordered, route)
	}
	return registry
}

// Lookup 根据族键查找 FamilyRoute。
func (r *FamilyRegistry) Lookup(family string) (*FamilyRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[normalizeFamily(family)]
	return route, ok
}

// List 返回当前启用的 FamilyRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *FamilyRegistry) List() []FamilyRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]FamilyRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

// ScmRegistry 返回 github 族的注册表，供 checkout 状态查询使用；未启用时返回
// 直接扫描 ReposPath 的注册表，状态查询不依赖该族是否对外提供页面。
func (r *FamilyRegistry) ScmRegistry(cfg *config.Config) library.Registry {
	if route, ok := r.Lookup(config.FamilyGitHub); ok {
		return route.Adapter.Registry()
	}
	return library.NewScmRegistry(library.ScmLayout{Root: cfg.Global.ReposPath})
}

func buildFamilyRoute(key string, deps docmodule.Deps) (*FamilyRoute, error) {
	mod, err := docmodule.Build(key, deps)
	if err != nil {
		return nil, fmt.Errorf("family %s: %w", key, err)
	}
	return &FamilyRoute{
		Key:     mod.Key(),
		Module:  mod.Metadata(),
		Adapter: mod,
	}, nil
}

func normalizeFamily(raw string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(raw), "/"))
}
