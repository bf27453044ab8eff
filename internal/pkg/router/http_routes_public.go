package router

import (
	"github.com/ManuelReschke/CardVault/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post(constants.StripeWebhookRoute, h.deps.Billing.HandleStripeWebhook)
	app.Post(constants.ProviderWebhookRoute, h.deps.Billing.HandleStripeWebhook)
}
