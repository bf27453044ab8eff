package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/ManuelReschke/CardVault/internal/pkg/billing"
	"github.com/ManuelReschke/CardVault/internal/pkg/usercontext"
)

const testWebhookSecret = "whsec_controller_test"

type stubProvider struct {
	mu             sync.Mutex
	setupIntents   map[string]*billing.SetupIntent
	paymentMethods map[string]*billing.PaymentMethodDetails
	err            error
}

func newStubProvider() *stubProvider {
	p := &stubProvider{
		setupIntents:   make(map[string]*billing.SetupIntent),
		paymentMethods: make(map[string]*billing.PaymentMethodDetails),
	}
	p.paymentMethods["pm_1"] = &billing.PaymentMethodDetails{
		ID: "pm_1", CustomerID: "cus_1", Type: "card",
		Card: &billing.CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
	}
	p.paymentMethods["pm_2"] = &billing.PaymentMethodDetails{
		ID: "pm_2", CustomerID: "cus_1", Type: "card",
		Card: &billing.CardDetails{Brand: "mastercard", Last4: "4444", ExpMonth: 1, ExpYear: 2031},
	}
	p.setupIntents["seti_ok"] = &billing.SetupIntent{ID: "seti_ok", CustomerID: "cus_1", Status: billing.SetupIntentStatusSucceeded, PaymentMethodID: "pm_1"}
	p.setupIntents["seti_other"] = &billing.SetupIntent{ID: "seti_other", CustomerID: "cus_9", Status: billing.SetupIntentStatusSucceeded, PaymentMethodID: "pm_9"}
	p.setupIntents["seti_pending"] = &billing.SetupIntent{ID: "seti_pending", CustomerID: "cus_1", Status: "requires_action"}
	p.setupIntents["seti_nopm"] = &billing.SetupIntent{ID: "seti_nopm", CustomerID: "cus_1", Status: billing.SetupIntentStatusSucceeded}
	return p
}

func (p *stubProvider) GetSetupIntent(ctx context.Context, id string) (*billing.SetupIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	si, ok := p.setupIntents[id]
	if !ok {
		return nil, fmt.Errorf("no such setup intent: %s", id)
	}
	out := *si
	return &out, nil
}

func (p *stubProvider) GetPaymentMethod(ctx context.Context, id string) (*billing.PaymentMethodDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	pm, ok := p.paymentMethods[id]
	if !ok {
		return nil, fmt.Errorf("no such payment method: %s", id)
	}
	out := *pm
	return &out, nil
}

type stubStats struct {
	counts  map[string]int64
	drained bool
	err     error
}

func (s *stubStats) Snapshot(ctx context.Context) (map[string]int64, error) {
	return s.counts, s.err
}

func (s *stubStats) Drain(ctx context.Context) (map[string]int64, error) {
	s.drained = true
	return s.counts, s.err
}

type stubUsers struct {
	byHash map[string]*models.User
}

func (s *stubUsers) Create(ctx context.Context, user *models.User) error { return nil }
func (s *stubUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubUsers) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubUsers) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	if u, ok := s.byHash[hash]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *stubUsers) TouchAPIKeyUsage(ctx context.Context, id uint) error { return nil }
func (s *stubUsers) Update(ctx context.Context, user *models.User) error { return nil }

type testEnv struct {
	repo     *billing.MemoryRepository
	provider *stubProvider
	billing  *BillingController
	methods  *PaymentMethodController
}

func newTestEnv(t *testing.T, stats OutcomeStats) *testEnv {
	t.Helper()
	repo := billing.NewMemoryRepository()
	repo.AddUser(models.User{ID: 1, Name: "alice", Email: "alice@example.com", StripeCustomerID: "cus_1", Status: models.STATUS_ACTIVE})
	repo.AddUser(models.User{ID: 2, Name: "bob", Email: "bob@example.com", Status: models.STATUS_ACTIVE})

	cfg := billing.Config{
		SecretKey:      "sk_test_123",
		WebhookSecrets: []string{testWebhookSecret},
		FetchTimeout:   time.Second,
	}
	provider := newStubProvider()
	engine := billing.NewEngine(repo, provider, cfg, nil)
	verifier := billing.NewSignatureVerifier(cfg.WebhookSecrets, cfg.SignatureTolerance)
	processor := billing.NewWebhookProcessor(verifier, repo, engine, nil, nil)

	return &testEnv{
		repo:     repo,
		provider: provider,
		billing:  NewBillingController(processor, stats, nil),
		methods:  NewPaymentMethodController(repo, billing.NewResolver(provider, engine, cfg), nil),
	}
}

// asUser marks every request as authenticated for userID.
func asUser(userID uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != 0 {
			usercontext.SetUserContext(c, usercontext.UserContext{UserID: userID, IsLoggedIn: true, AuthMethod: usercontext.AuthSession})
		}
		return c.Next()
	}
}

func eventBody(t *testing.T, eventID, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      eventID,
		"object":  "event",
		"type":    eventType,
		"created": 1700000000,
		"data":    map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return body
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}
