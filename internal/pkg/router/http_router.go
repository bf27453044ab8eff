package router

import (
	"github.com/ManuelReschke/CardVault/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Webhooks authenticate by signature, not by session, and must see the
	// raw body. Register them before the session middleware.
	h.registerPublicRoutes(app)

	// Apply UserContext middleware to everything registered afterwards
	app.Use(middleware.UserContextMiddleware(h.deps.Sessions))

	h.registerAdminRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
