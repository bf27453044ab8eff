package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/CardVault/internal/pkg/billing"
	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
)

const webhookProcessTimeout = 15 * time.Second

// OutcomeStats reads webhook outcome counters.
type OutcomeStats interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
	Drain(ctx context.Context) (map[string]int64, error)
}

// BillingController serves the provider webhook endpoint.
type BillingController struct {
	processor *billing.WebhookProcessor
	stats     OutcomeStats
	log       *zap.Logger
}

// NewBillingController creates the controller. stats may be nil.
func NewBillingController(processor *billing.WebhookProcessor, stats OutcomeStats, log *zap.Logger) *BillingController {
	return &BillingController{processor: processor, stats: stats, log: logger.OrNop(log)}
}

// HandleStripeWebhook verifies and applies a provider event. The body is read
// as raw bytes; it must not be parsed before verification.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(billing.SignatureHeader))

	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	res := bc.processor.Process(ctx, rawBody, signature)
	ack := billing.Respond(res)
	if ack.JSON != nil {
		return c.Status(ack.Status).JSON(fiber.Map(ack.JSON))
	}
	return c.Status(ack.Status).SendString(ack.Text)
}

// HandleWebhookStats returns outcome counters. With ?reset=true the counters
// are drained.
func (bc *BillingController) HandleWebhookStats(c *fiber.Ctx) error {
	if bc.stats == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Counters not configured"})
	}

	read := bc.stats.Snapshot
	if c.QueryBool("reset", false) {
		read = bc.stats.Drain
	}
	counts, err := read(c.UserContext())
	if err != nil {
		bc.log.Error("read webhook counters failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read counters"})
	}

	outcomes := make(fiber.Map, len(billing.Outcomes))
	for _, o := range billing.Outcomes {
		outcomes[string(o)] = counts[string(o)]
	}
	return c.JSON(fiber.Map{"outcomes": outcomes})
}
