package middleware

import (
	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
	"github.com/ManuelReschke/CardVault/internal/pkg/session"
	"github.com/ManuelReschke/CardVault/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the user context from the session cookie for
// every request. Requests without a session stay anonymous.
func UserContextMiddleware(store *fibersession.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc, err := session.Lookup(store, c)
		if err != nil {
			logger.L().Debug("session lookup failed", zap.Error(err))
		}
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}
