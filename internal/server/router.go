package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/cache"
	"github.com/any-hub/doc-hub/internal/docmodule"
	"github.com/any-hub/doc-hub/internal/logging"
)

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger   *logrus.Logger
	Families *FamilyRegistry
	// Cache backs the static layer; nil disables serving cached pages.
	Cache     cache.Store
	SiteTitle string
}

const contextKeyRequestID = "_dochub_request_id"

// NewApp builds a Fiber application with the request-id, compression and
// cached-page middlewares plus the HTML error handler. Routes are attached
// afterwards by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Families == nil {
		return nil, errors.New("family registry is required")
	}
	if opts.SiteTitle == "" {
		opts.SiteTitle = "doc-hub"
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(compress.New())
	app.Use(cachedPageMiddleware(opts))

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并回写到响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// cachedPageMiddleware 在所有路由之前命中 <PublicPath>/<path>.html，命中后不再进入适配器。
func cachedPageMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if opts.Cache == nil || !cacheablePath(c.Method(), c.Path()) {
			return c.Next()
		}

		result, err := opts.Cache.Get(c.Context(), c.Path())
		if err != nil {
			return c.Next()
		}
		defer result.Reader.Close()

		body, err := io.ReadAll(result.Reader)
		if err != nil {
			opts.Logger.WithError(err).WithField("file", result.Entry.FilePath).Warn("cached_page_read_failed")
			return c.Next()
		}

		opts.Logger.WithFields(logging.RequestFields(familyOf(c.Path()), c.Path(), RequestID(c), true)).Info("request")
		c.Type("html", "utf-8")
		return c.Send(body)
	}
}

func cacheablePath(method, path string) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	return !isDiagnosticsPath(path) && !strings.HasPrefix(path, "/checkout") && !strings.HasPrefix(path, "/search/")
}

func errorHandler(opts AppOptions) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		switch {
		case errors.Is(err, docmodule.ErrNotFound):
			status = fiber.StatusNotFound
		case errors.As(err, &fe):
			status = fe.Code
		}

		fields := logging.RequestFields(familyOf(c.Path()), c.Path(), RequestID(c), false)
		fields["status"] = status
		if status >= fiber.StatusInternalServerError {
			opts.Logger.WithFields(fields).WithError(err).Error("request_failed")
		} else {
			opts.Logger.WithFields(fields).Debug("request_rejected")
		}

		body, renderErr := RenderError(opts.SiteTitle, status)
		if renderErr != nil {
			return c.Status(status).SendString(http.StatusText(status))
		}
		c.Status(status)
		c.Type("html", "utf-8")
		return c.Send(body)
	}
}

// RequestID returns the request identifier stored by the request middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func familyOf(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
