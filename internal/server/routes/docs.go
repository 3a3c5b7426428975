package routes

import (
	"context"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/cache"
	"github.com/any-hub/doc-hub/internal/config"
	"github.com/any-hub/doc-hub/internal/library"
	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/server"
)

// defaultLetter 是包索引页未指定首字母时的默认值。
const defaultLetter = "a"

var letterPattern = regexp.MustCompile(`^[a-z]$`)

// DocOptions 汇总文档路由的依赖。
type DocOptions struct {
	Families  *server.FamilyRegistry
	Publisher *cache.Publisher
	Logger    *logrus.Logger
	SiteTitle string
}

// RegisterDocRoutes 为每个启用的文档族注册索引页与文档页，并挂上 /list 与旧地址跳转。
func RegisterDocRoutes(app *fiber.App, opts DocOptions) {
	if app == nil || opts.Families == nil {
		return
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	for _, route := range opts.Families.List() {
		family := route
		prefix := "/" + family.Key

		app.Get(prefix, func(c fiber.Ctx) error {
			return serveIndex(c, opts, &family, "")
		})
		app.Get(prefix+"/*", func(c fiber.Ctx) error {
			rest := c.Params("*")
			if family.Key == config.FamilyGems && letterPattern.MatchString(rest) {
				return serveIndex(c, opts, &family, rest)
			}
			return servePage(c, opts, &family)
		})
	}

	app.Get("/list/:family", func(c fiber.Ctx) error {
		family, ok := opts.Families.Lookup(c.Params("family"))
		if !ok {
			return fiber.ErrNotFound
		}
		return c.JSON(encodeListing(family.Key, family.Adapter.List(c.Query("letter"))))
	})

	// 搜索结果随查询变化，不发布为静态页。
	app.Get("/search/:family/*", func(c fiber.Ctx) error {
		family, ok := opts.Families.Lookup(c.Params("family"))
		if !ok {
			return fiber.ErrNotFound
		}
		return serveSearch(c, opts, family)
	})

	registerLegacyRedirects(app)
}

func servePage(c fiber.Ctx, opts DocOptions, family *server.FamilyRoute) error {
	body, err := family.Adapter.Serve(requestContext(c), c.Path())
	if err != nil {
		return err
	}
	opts.Logger.WithFields(logging.RequestFields(family.Key, c.Path(), server.RequestID(c), false)).Info("request")
	c.Type("html", "utf-8")
	return c.Send(body)
}

func serveSearch(c fiber.Ctx, opts DocOptions, family *server.FamilyRoute) error {
	query := strings.TrimSpace(c.Query("q"))
	hits, err := family.Adapter.Search(requestContext(c), c.Params("*"), query)
	if err != nil {
		return err
	}
	page := server.IndexPage{
		SiteTitle: opts.SiteTitle,
		Heading:   "Search " + strings.Trim(c.Params("*"), "/"),
		Entries:   make([]server.IndexEntry, 0, len(hits)),
	}
	if query != "" {
		page.Heading += ": " + query
	}
	for _, hit := range hits {
		label := hit.Page
		if hit.Title != "" && hit.Title != hit.Page {
			label = hit.Title + " (" + hit.Page + ")"
		}
		page.Entries = append(page.Entries, server.IndexEntry{IndexLink: server.IndexLink{Label: label, Href: hit.Href}})
	}

	body, err := server.RenderIndex(page)
	if err != nil {
		return err
	}
	opts.Logger.WithFields(logging.RequestFields(family.Key, c.Path(), server.RequestID(c), false)).Info("request")
	c.Type("html", "utf-8")
	return c.Send(body)
}

func serveIndex(c fiber.Ctx, opts DocOptions, family *server.FamilyRoute, letter string) error {
	page := server.IndexPage{
		SiteTitle: opts.SiteTitle,
		Heading:   family.Module.Description,
	}
	if family.Key == config.FamilyGems {
		if letter == "" {
			letter = defaultLetter
		}
		page.Letter = letter
		page.Letters = letterLinks(family.Key)
	}
	page.Entries = indexEntries(family.Key, family.Adapter.List(letter))

	body, err := server.RenderIndex(page)
	if err != nil {
		return err
	}
	body = opts.Publisher.Publish(requestContext(c), c.Path(), body)
	opts.Logger.WithFields(logging.RequestFields(family.Key, c.Path(), server.RequestID(c), false)).Info("request")
	c.Type("html", "utf-8")
	return c.Send(body)
}

func indexEntries(family string, entries []library.Entry) []server.IndexEntry {
	result := make([]server.IndexEntry, 0, len(entries))
	for _, entry := range entries {
		base := "/" + family + "/" + entry.Identity.String()
		item := server.IndexEntry{IndexLink: server.IndexLink{Label: entry.Identity.String(), Href: base}}
		for _, v := range entry.Versions {
			item.Versions = append(item.Versions, server.IndexLink{Label: v.Version, Href: base + "/" + v.Version})
		}
		result = append(result, item)
	}
	return result
}

func letterLinks(family string) []server.IndexLink {
	links := make([]server.IndexLink, 0, 26)
	for ch := 'a'; ch <= 'z'; ch++ {
		links = append(links, server.IndexLink{Label: string(ch), Href: "/" + family + "/" + string(ch)})
	}
	return links
}

type listingPayload struct {
	Family  string         `json:"family"`
	Entries []entryPayload `json:"entries"`
}

type entryPayload struct {
	Owner    string   `json:"owner,omitempty"`
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
}

func encodeListing(family string, entries []library.Entry) listingPayload {
	payload := listingPayload{Family: family, Entries: make([]entryPayload, 0, len(entries))}
	for _, entry := range entries {
		item := entryPayload{Owner: entry.Identity.Owner, Name: entry.Identity.Name, Versions: make([]string, 0, len(entry.Versions))}
		for _, v := range entry.Versions {
			item.Versions = append(item.Versions, v.Version)
		}
		payload.Entries = append(payload.Entries, item)
	}
	return payload
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// legacyFileLink 匹配旧文档站的 /file:README 与 /frames/file:README 链接。
var legacyFileLink = regexp.MustCompile(`^/(frames/)?file:`)

func registerLegacyRedirects(app *fiber.App) {
	app.Get("/", func(c fiber.Ctx) error {
		return c.Redirect().Status(fiber.StatusFound).To("/gems")
	})
	app.Get("/docs", func(c fiber.Ctx) error {
		return c.Redirect().Status(fiber.StatusFound).To("/github")
	})
	app.Get("/docs/*", func(c fiber.Ctx) error {
		return c.Redirect().Status(fiber.StatusFound).To(LegacyLocation(c.Params("*")))
	})
}

// LegacyLocation 把旧地址 /docs/<rest> 映射为新地址：<user>-<proj> 指向 SCM 文档，
// 其余视为包名。用户名与项目名以最后一个 "-" 分隔。
func LegacyLocation(rest string) string {
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return "/github"
	}
	lib, extra := rest, ""
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		lib, extra = rest[:idx], rest[idx:]
	}
	extra = legacyFileLink.ReplaceAllString(extra, "/${1}file/")

	if idx := strings.LastIndexByte(lib, '-'); idx > 0 && idx < len(lib)-1 {
		return "/github/" + lib[:idx] + "/" + lib[idx+1:] + extra
	}
	return "/gems/" + lib + extra
}
