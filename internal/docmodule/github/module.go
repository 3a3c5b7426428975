// Package github 注册 SCM checkout 文档模块。注册表每次读取都重新扫描发布目录，
// 因为产生新版本的是独立的 checkout worker。
package github

import (
	"errors"

	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/library"
)

func init() {
	docmodule.MustRegister(docmodule.ModuleMetadata{
		Key:         config.FamilyGitHub,
		Description: "Source-control checkouts published by the checkout worker",
		Origin:      library.OriginScmCheckout,
		PathPattern: "/github/<owner>/<name>[/<commit>][/<page>]",
		Build:       build,
	})
}

func build(deps docmodule.Deps) (docmodule.Components, error) {
	if deps.Config == nil {
		return docmodule.Components{}, errors.New("config is required")
	}
	return docmodule.Components{
		Registry: library.NewScmRegistry(library.ScmLayout{Root: deps.Config.Global.ReposPath}),
		Router:   docmodule.SegmentRouter{OwnerSegments: 1},
	}, nil
}
