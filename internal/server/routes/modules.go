package routes

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/server"
)

// RegisterModuleRoutes 暴露 /-/modules 诊断接口，列出已注册模块与启用的文档族。
func RegisterModuleRoutes(app *fiber.App, registry *server.FamilyRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/modules", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"modules":  encodeModules(docmodule.List()),
			"families": encodeFamilies(registry.List()),
		}
		return c.JSON(payload)
	})

	app.Get("/-/modules/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "module_key_required"})
		}
		meta, ok := docmodule.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "module_not_found"})
		}
		encoded := encodeModule(meta)
		_, encoded.Enabled = registry.Lookup(key)
		return c.JSON(encoded)
	})
}

type modulePayload struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Origin      string `json:"origin"`
	PathPattern string `json:"path_pattern"`
	Enabled     bool   `json:"enabled"`
}

type familyPayload struct {
	Family    string `json:"family"`
	ModuleKey string `json:"module_key"`
	Projects  int    `json:"projects"`
}

func encodeModules(mods []docmodule.ModuleMetadata) []modulePayload {
	if len(mods) == 0 {
		return nil
	}
	sort.Slice(mods, func(i, j int) bool {
		return mods[i].Key < mods[j].Key
	})
	result := make([]modulePayload, 0, len(mods))
	for _, meta := range mods {
		result = append(result, encodeModule(meta))
	}
	return result
}

func encodeModule(meta docmodule.ModuleMetadata) modulePayload {
	return modulePayload{
		Key:         meta.Key,
		Description: meta.Description,
		Origin:      string(meta.Origin),
		PathPattern: meta.PathPattern,
	}
}

func encodeFamilies(routes []server.FamilyRoute) []familyPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Key < routes[j].Key
	})
	result := make([]familyPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, familyPayload{
			Family:    route.Key,
			ModuleKey: route.Module.Key,
			Projects:  len(route.Adapter.List("")),
		})
	}
	return result
}
