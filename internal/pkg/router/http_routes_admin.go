package router

import (
	"github.com/ManuelReschke/CardVault/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	if len(h.deps.AdminUsers) == 0 {
		return
	}
	adminGroup := app.Group(constants.AdminPrefix, basicauth.New(basicauth.Config{
		Users: h.deps.AdminUsers,
		Realm: "CardVault Admin",
	}))

	// Webhook delivery outcomes
	adminGroup.Get(constants.AdminWebhookStatsPath, h.deps.Billing.HandleWebhookStats)
}
