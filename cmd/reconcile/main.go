// Command reconcile replays ledgered webhook deliveries that failed after
// their signature was verified.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/ManuelReschke/CardVault/internal/pkg/billing"
	"github.com/ManuelReschke/CardVault/internal/pkg/cache"
	"github.com/ManuelReschke/CardVault/internal/pkg/database"
	"github.com/ManuelReschke/CardVault/internal/pkg/env"
	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
	"github.com/ManuelReschke/CardVault/internal/pkg/metrics/counter"
)

func main() {
	limit := flag.Int("limit", 100, "maximum number of failed deliveries to replay")
	dryRun := flag.Bool("dry-run", false, "list failed deliveries without replaying them")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	env.SetupEnvFile()
	zl, err := logger.Setup(env.IsDev())
	if err != nil {
		log.Fatalf("setup logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(zl, *limit, *dryRun, *timeout); err != nil {
		zl.Error("reconcile failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(zl *zap.Logger, limit int, dryRun bool, timeout time.Duration) error {
	db, err := database.SetupDatabase()
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	cfg, err := billing.ConfigFromEnv()
	if err != nil {
		return err
	}

	repo := billing.NewRepository(db)
	engine := billing.NewEngine(repo, billing.NewStripeClient(cfg), cfg, zl)
	processor := billing.NewWebhookProcessor(
		billing.NewSignatureVerifier(cfg.WebhookSecrets, cfg.SignatureTolerance),
		repo, engine, counter.NewOutcomeCounter(cache.GetClient()), zl,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	events, err := repo.ListFailedWebhookEvents(ctx, models.BillingProviderStripe, limit)
	if err != nil {
		return fmt.Errorf("list failed deliveries: %w", err)
	}
	zl.Info("failed deliveries loaded", zap.Int("count", len(events)), zap.Bool("dry_run", dryRun))

	failed := 0
	for _, evt := range events {
		if dryRun {
			fmt.Printf("%s\t%s\t%s\n", evt.ProviderEventID, evt.EventType, evt.ProcessingError)
			continue
		}
		res := processor.Replay(ctx, evt)
		fmt.Println(res.String())
		if res.Outcome == billing.OutcomeFailed || res.Outcome == billing.OutcomeDecodeFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deliveries still failing", failed, len(events))
	}
	return nil
}
