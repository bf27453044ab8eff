package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/ManuelReschke/CardVault/app/repository"
	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
	"github.com/ManuelReschke/CardVault/internal/pkg/session"
	"github.com/ManuelReschke/CardVault/internal/pkg/usercontext"
)

// SessionLoginRequest exchanges an API key for a browser session.
type SessionLoginRequest struct {
	APIKey string `json:"api_key" form:"api_key"`
}

// AuthController opens and closes cookie sessions for browser clients that
// run the client-confirmed card setup.
type AuthController struct {
	users repository.UserRepository
	store *fibersession.Store
	log   *zap.Logger
}

func NewAuthController(users repository.UserRepository, store *fibersession.Store, log *zap.Logger) *AuthController {
	return &AuthController{users: users, store: store, log: logger.OrNop(log)}
}

func (ac *AuthController) HandleSessionLogin(c *fiber.Ctx) error {
	var req SessionLoginRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.APIKey) == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"success": false, "error": "validation_failed", "message": "api_key is required"})
	}

	// notice: failures are reported without detail on purpose
	user, err := ac.users.GetByAPIKeyHash(c.UserContext(), models.HashAPIKey(req.APIKey))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ac.log.Error("session login lookup failed", zap.Error(err))
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized", "message": "There is a problem with the login process"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": "forbidden", "message": "User inactive"})
	}

	uc := usercontext.UserContext{
		UserID:     user.ID,
		Username:   user.Name,
		IsLoggedIn: true,
		IsAdmin:    user.Role == models.ROLE_ADMIN,
	}
	if err := session.Login(ac.store, c, uc); err != nil {
		ac.log.Error("session login failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal_server_error", "message": "Session could not be saved"})
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"user_id": user.ID, "username": user.Name}})
}

func (ac *AuthController) HandleSessionLogout(c *fiber.Ctx) error {
	if err := session.Logout(ac.store, c); err != nil {
		ac.log.Warn("session logout failed", zap.Error(err))
	}
	return c.JSON(fiber.Map{"success": true})
}
