package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/checkout"
	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/server"
)

// checkout 接口的纯文本响应，客户端（post-commit hook、轮询脚本）按字面量比较。
const (
	replyOK            = "OK"
	replyInvalidScheme = "INVALIDSCHEME"
	replyBusy          = "BUSY"
	replyYes           = "YES"
	replyNo            = "NO"
	replyError         = "ERROR"
)

// RegisterCheckoutRoutes 暴露 POST /checkout 与 GET /checkout/:owner/:project/:commit。
func RegisterCheckoutRoutes(app *fiber.App, orch *checkout.Orchestrator, status *checkout.StatusResolver, logger *logrus.Logger) {
	if app == nil || orch == nil || status == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Post("/checkout", func(c fiber.Ctx) error {
		req, err := checkout.ParseForm(c.FormValue("scheme"), c.FormValue("url"), c.FormValue("commit"), c.FormValue("payload"))
		if err != nil {
			logger.WithFields(logging.CheckoutFields("checkout_request", "", c.FormValue("scheme"), c.FormValue("url"), c.FormValue("commit"))).
				WithField("request_id", server.RequestID(c)).
				WithError(err).Info("checkout_rejected")
			return c.SendString(replyInvalidScheme)
		}

		switch err := orch.RequestCheckout(c.Context(), req); {
		case err == nil:
			return c.SendString(replyOK)
		case errors.Is(err, checkout.ErrInvalidScheme):
			logger.WithFields(logging.CheckoutFields("checkout_request", req.Identity().String(), string(req.Scheme), req.URL, req.Commit)).
				WithField("request_id", server.RequestID(c)).
				WithError(err).Info("checkout_rejected")
			return c.SendString(replyInvalidScheme)
		default:
			return c.Status(fiber.StatusServiceUnavailable).SendString(replyBusy)
		}
	})

	app.Get("/checkout/:owner/:project/:commit", func(c fiber.Ctx) error {
		switch status.Status(c.Params("owner"), c.Params("project"), c.Params("commit")) {
		case checkout.StatusSuccess:
			return c.SendString(replyYes)
		case checkout.StatusFailure:
			return c.SendString(replyError)
		default:
			return c.SendString(replyNo)
		}
	})
}
