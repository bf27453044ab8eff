package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/CardVault/internal/pkg/env"
)

const defaultFetchTimeout = 10 * time.Second

// Config holds provider credentials and pipeline limits. It is built once at
// startup and passed to every billing component.
type Config struct {
	SecretKey          string
	WebhookSecrets     []string
	SignatureTolerance time.Duration
	FetchTimeout       time.Duration
	APIBaseURL         string
}

// ConfigFromEnv reads the STRIPE_* settings.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		SecretKey:          strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecrets:     env.GetList("STRIPE_WEBHOOK_SECRET"),
		SignatureTolerance: env.GetDuration("STRIPE_WEBHOOK_TOLERANCE", DefaultSignatureTolerance),
		FetchTimeout:       env.GetDuration("STRIPE_FETCH_TIMEOUT", defaultFetchTimeout),
		APIBaseURL:         strings.TrimRight(strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", "")), "/"),
	}
	return cfg, cfg.Validate()
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}
	if len(c.WebhookSecrets) == 0 {
		return errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}
	return nil
}

func (c Config) fetchTimeout() time.Duration {
	if c.FetchTimeout <= 0 {
		return defaultFetchTimeout
	}
	return c.FetchTimeout
}
