package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ManuelReschke/CardVault/app/controllers"
	"github.com/ManuelReschke/CardVault/app/repository"
	"github.com/ManuelReschke/CardVault/internal/pkg/billing"
	"github.com/ManuelReschke/CardVault/internal/pkg/cache"
	"github.com/ManuelReschke/CardVault/internal/pkg/constants"
	"github.com/ManuelReschke/CardVault/internal/pkg/database"
	"github.com/ManuelReschke/CardVault/internal/pkg/env"
	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
	"github.com/ManuelReschke/CardVault/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CardVault/internal/pkg/router"
	"github.com/ManuelReschke/CardVault/internal/pkg/session"
)

func main() {
	app, err := NewApplication()
	if err != nil {
		log.Fatal(err)
	}
	err = app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, error) {
	env.SetupEnvFile()
	zl, err := logger.Setup(env.IsDev())
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	db, err := database.SetupDatabase()
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	rdb := cache.SetupCache()

	cfg, err := billing.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	// billing pipeline
	billingRepo := billing.NewRepository(db)
	provider := billing.NewStripeClient(cfg)
	engine := billing.NewEngine(billingRepo, provider, cfg, zl)
	outcomes := counter.NewOutcomeCounter(rdb)
	processor := billing.NewWebhookProcessor(
		billing.NewSignatureVerifier(cfg.WebhookSecrets, cfg.SignatureTolerance),
		billingRepo, engine, outcomes, zl,
	)
	resolver := billing.NewResolver(provider, engine, cfg)

	users := repository.NewFactory(db).GetUserRepository()
	store := session.NewSessionStore(session.NewRedisStorage(rdb))

	basePath := findBasePath()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), fiberlogger.New())

	adminUsers := adminCredentials()
	if len(adminUsers) > 0 {
		// fiber metrics
		app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{Users: adminUsers}), monitor.New())
	} else {
		zl.Warn("METRICS_USER/METRICS_PASSWORD not set, /metrics and /admin are disabled")
	}

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        controllers.NewBillingController(processor, outcomes, zl),
		PaymentMethods: controllers.NewPaymentMethodController(billingRepo, resolver, zl),
		Auth:           controllers.NewAuthController(users, store, zl),
		Users:          users,
		Sessions:       store,
		AdminUsers:     adminUsers,
	})

	zl.Info("application initialized", zap.Bool("dev", env.IsDev()), zap.Int("webhook_secrets", len(cfg.WebhookSecrets)))
	return app, nil
}

// findBasePath locates the directory holding public/, trying the working
// directory first and then the project root relative to cmd/cardvault.
func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}

func adminCredentials() map[string]string {
	user := strings.TrimSpace(env.GetEnv("METRICS_USER", ""))
	password := env.GetEnv("METRICS_PASSWORD", "")
	if user == "" || password == "" {
		return nil
	}
	return map[string]string{user: password}
}
