package server

// 注册所有内置文档族；启用哪些由配置的 Families 决定。
import (
	_ "github.com/any-hub/doc-hub/internal/docmodule/gems"
	_ "github.com/any-hub/doc-hub/internal/docmodule/github"
)
