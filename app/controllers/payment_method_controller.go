package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/ManuelReschke/CardVault/internal/pkg/billing"
	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
	"github.com/ManuelReschke/CardVault/internal/pkg/usercontext"
)

const resolveTimeout = 20 * time.Second

// ResolvePaymentMethodRequest is the body of the client-confirmed setup lookup.
// setup_intent_id is accepted as an alias of resourceId.
type ResolvePaymentMethodRequest struct {
	ResourceID    string `json:"resourceId" validate:"required_without=SetupIntentID,max=255"`
	SetupIntentID string `json:"setup_intent_id" validate:"required_without=ResourceID,max=255"`
}

func (r ResolvePaymentMethodRequest) resourceID() string {
	if id := strings.TrimSpace(r.ResourceID); id != "" {
		return id
	}
	return strings.TrimSpace(r.SetupIntentID)
}

// PaymentMethodController serves the authenticated payment-method API.
type PaymentMethodController struct {
	repo     billing.Repository
	resolver *billing.Resolver
	validate *validator.Validate
	log      *zap.Logger
}

// NewPaymentMethodController creates the controller.
func NewPaymentMethodController(repo billing.Repository, resolver *billing.Resolver, log *zap.Logger) *PaymentMethodController {
	return &PaymentMethodController{
		repo:     repo,
		resolver: resolver,
		validate: validator.New(),
		log:      logger.OrNop(log).Named("payment_methods"),
	}
}

// HandleResolvePaymentMethod fetches a client-confirmed setup intent, checks
// that it belongs to the caller and returns its payment method id. The
// result is also recorded locally; a recording failure does not fail the call.
func (pc *PaymentMethodController) HandleResolvePaymentMethod(c *fiber.Ctx) error {
	var req ResolvePaymentMethodRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid_request", "message": "Invalid JSON body"})
		}
	}
	if err := pc.validate.Struct(req); err != nil || req.resourceID() == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"success": false, "error": "validation_failed", "message": "resourceId is required"})
	}

	user, ok, err := pc.currentUser(c)
	if !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	pmID, res, err := pc.resolver.ResolveAndApply(ctx, user, req.resourceID())
	if err != nil {
		return pc.resolveError(c, user, req.resourceID(), err)
	}
	if res.Status == billing.StatusFailed {
		pc.log.Warn("recording resolved payment method failed",
			zap.Uint("user_id", user.ID),
			zap.String("payment_method_id", pmID),
			zap.Error(res.Cause),
		)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"paymentMethodId": pmID},
	})
}

// HandleListPaymentMethods returns the caller's cards, default first.
func (pc *PaymentMethodController) HandleListPaymentMethods(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	methods, err := pc.repo.ListPaymentMethods(c.UserContext(), userCtx.UserID)
	if err != nil {
		pc.log.Error("list payment methods failed", zap.Uint("user_id", userCtx.UserID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment methods"})
	}
	if methods == nil {
		methods = []models.PaymentMethod{}
	}
	return c.JSON(fiber.Map{"success": true, "data": methods})
}

// currentUser loads the authenticated user. When ok is false the response
// has already been written and err is the handler's return value.
func (pc *PaymentMethodController) currentUser(c *fiber.Ctx) (user *models.User, ok bool, err error) {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return nil, false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized", "message": "login required"})
	}
	user, err = pc.repo.GetUserByID(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return nil, false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized", "message": "User not found"})
		}
		pc.log.Error("load user failed", zap.Uint("user_id", userCtx.UserID), zap.Error(err))
		return nil, false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal_server_error", "message": "Failed to load user"})
	}
	return user, true, nil
}

func (pc *PaymentMethodController) resolveError(c *fiber.Ctx, user *models.User, resourceID string, err error) error {
	var mismatch *billing.OwnershipMismatchError
	var notCompleted *billing.NotCompletedError

	switch {
	case errors.As(err, &mismatch):
		pc.log.Warn("setup intent ownership mismatch", zap.Uint("user_id", user.ID), zap.String("resource_id", resourceID))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": "forbidden", "message": "Resource does not belong to the current user"})
	case errors.As(err, &notCompleted):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "not_completed", "message": "Setup not completed", "status": notCompleted.Status})
	case errors.Is(err, billing.ErrMissingPaymentMethod):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "missing_payment_method", "message": "Setup has no payment method"})
	case errors.Is(err, billing.ErrResourceIDRequired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"success": false, "error": "validation_failed", "message": "resourceId is required"})
	default:
		pc.log.Error("resolve setup intent failed", zap.Uint("user_id", user.ID), zap.String("resource_id", resourceID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal_server_error", "message": "Failed to retrieve setup"})
	}
}
