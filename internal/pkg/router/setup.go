package router

import (
	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"

	"github.com/ManuelReschke/CardVault/app/controllers"
	"github.com/ManuelReschke/CardVault/app/repository"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the constructed controllers and stores the routes use.
type Dependencies struct {
	Billing        *controllers.BillingController
	PaymentMethods *controllers.PaymentMethodController
	Auth           *controllers.AuthController
	Users          repository.UserRepository
	Sessions       *fibersession.Store
	// AdminUsers are basic-auth credentials for /admin. Empty disables /admin.
	AdminUsers map[string]string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Install HttpRouter first to register the global UserContext middleware
	// the API routes depend on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
