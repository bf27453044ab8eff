package router

import (
	"time"

	"github.com/ManuelReschke/CardVault/internal/pkg/constants"
	"github.com/ManuelReschke/CardVault/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIPrefix, cors.New(), limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
	}), middleware.APIKeyAuthMiddleware(h.deps.Users))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Browser sessions
	api.Post(constants.SessionRoute, h.deps.Auth.HandleSessionLogin)
	api.Delete(constants.SessionRoute, h.deps.Auth.HandleSessionLogout)

	// Payment methods
	pm := api.Group(constants.PaymentMethodsRoute, middleware.RequireAPISessionAuth)
	pm.Get("/", h.deps.PaymentMethods.HandleListPaymentMethods)
	pm.Post(constants.ResolvePaymentMethod, h.deps.PaymentMethods.HandleResolvePaymentMethod)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
