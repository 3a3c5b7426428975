// Package gems 注册远程包文档模块：包清单在启动时读取一次，文档在首次访问时按需抓取并生成。
package gems

import (
	"errors"

	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/fetch"
	"github.com/any-hub/doc-hub/internal/library"
)

func init() {
	docmodule.MustRegister(docmodule.ModuleMetadata{
		Key:         config.FamilyGems,
		Description: "Remote packages listed in the package manifest, fetched and documented on first access",
		Origin:      library.OriginRemotePackage,
		PathPattern: "/gems/<name>[/<version>][/<page>]",
		Build:       build,
	})
}

func build(deps docmodule.Deps) (docmodule.Components, error) {
	if deps.Config == nil {
		return docmodule.Components{}, errors.New("config is required")
	}
	global := deps.Config.Global
	layout := library.PackageLayout{Root: global.PackagesPath}

	registry, err := library.OpenPackageRegistry(layout, global.PackageManifest)
	switch {
	case err == nil:
	case errors.Is(err, library.ErrManifestMissing):
		// 清单缺失时不提供远程包文档，但服务仍可启动。
		if deps.Logger != nil {
			deps.Logger.WithError(err).WithField("action", "load_manifest").
				Error("no package manifest to load remote packages from, not serving gems")
		}
	case errors.Is(err, library.ErrInvalidManifestLine):
		if deps.Logger != nil {
			deps.Logger.WithError(err).WithField("action", "load_manifest").
				Warn("skipped invalid package manifest lines")
		}
	default:
		return docmodule.Components{}, err
	}

	fetcher := fetch.NewPackageFetcher(deps.HTTPClient, global.PackageSource, layout)
	return docmodule.Components{
		Registry: registry,
		Router:   docmodule.SegmentRouter{OwnerSegments: 0},
		Preparer: NewPreparer(fetcher, deps.Generator, layout, deps.Config.Checkout.Timeout.DurationValue()),
	}, nil
}
