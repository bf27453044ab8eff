package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

type fakeProvider struct {
	mu             sync.Mutex
	setupIntents   map[string]*SetupIntent
	paymentMethods map[string]*PaymentMethodDetails
	err            error
	delay          time.Duration
	pmCalls        int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		setupIntents:   make(map[string]*SetupIntent),
		paymentMethods: make(map[string]*PaymentMethodDetails),
	}
}

func (f *fakeProvider) addCard(id, customer, brand, last4 string, month, year int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentMethods[id] = &PaymentMethodDetails{
		ID:         id,
		CustomerID: customer,
		Type:       "card",
		Card:       &CardDetails{Brand: brand, Last4: last4, ExpMonth: month, ExpYear: year},
	}
}

func (f *fakeProvider) addSetupIntent(si SetupIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupIntents[si.ID] = &si
}

func (f *fakeProvider) GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	si, ok := f.setupIntents[id]
	if !ok {
		return nil, fmt.Errorf("no such setup intent: %s", id)
	}
	out := *si
	return &out, nil
}

func (f *fakeProvider) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethodDetails, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pmCalls++
	if f.err != nil {
		return nil, f.err
	}
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, fmt.Errorf("no such payment method: %s", id)
	}
	out := *pm
	return &out, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pmCalls
}

func (f *fakeProvider) wait(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func testConfig() Config {
	return Config{
		SecretKey:          "sk_test_123",
		WebhookSecrets:     []string{testSecret},
		SignatureTolerance: DefaultSignatureTolerance,
		FetchTimeout:       time.Second,
	}
}

type fixture struct {
	repo     *MemoryRepository
	provider *fakeProvider
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := NewMemoryRepository()
	repo.AddUser(models.User{ID: 1, Name: "alice", Email: "alice@example.com", StripeCustomerID: "cus_1"})
	repo.AddUser(models.User{ID: 2, Name: "bob", Email: "bob@example.com", StripeCustomerID: "cus_9"})

	provider := newFakeProvider()
	provider.addCard("pm_1", "cus_1", "visa", "4242", 12, 2030)
	provider.addCard("pm_2", "cus_1", "mastercard", "4444", 1, 2031)
	provider.addCard("pm_3", "cus_1", "amex", "0005", 6, 2032)

	return &fixture{
		repo:     repo,
		provider: provider,
		engine:   NewEngine(repo, provider, testConfig(), nil),
	}
}

func setupEvent(id, customer, pm string) *VerifiedEvent {
	return &VerifiedEvent{
		ID:   id,
		Type: EventSetupIntentSucceeded,
		Data: SetupSucceeded{SetupIntentID: "seti_" + id, PaymentMethodID: pm, CustomerID: customer},
	}
}

func detachEvent(id, pm string) *VerifiedEvent {
	return &VerifiedEvent{
		ID:   id,
		Type: EventPaymentMethodDetached,
		Data: PaymentMethodDetached{PaymentMethodID: pm},
	}
}

func setupPayload(t *testing.T, eventID, customer, pm string) []byte {
	t.Helper()
	object := map[string]interface{}{
		"id":             "seti_" + eventID,
		"object":         "setup_intent",
		"status":         "succeeded",
		"payment_method": pm,
	}
	if customer != "" {
		object["customer"] = customer
	}
	return eventPayload(t, eventID, string(EventSetupIntentSucceeded), object)
}

func detachPayload(t *testing.T, eventID, pm string) []byte {
	t.Helper()
	return eventPayload(t, eventID, string(EventPaymentMethodDetached), map[string]interface{}{
		"id":       pm,
		"object":   "payment_method",
		"type":     "card",
		"customer": nil,
	})
}

func eventPayload(t *testing.T, eventID, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"created":     1700000000,
		"api_version": "2025-07-30.basil",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return body
}

// assertSingleDefault checks that a user with records has exactly one default.
func assertSingleDefault(t *testing.T, methods []models.PaymentMethod) {
	t.Helper()
	defaults := 0
	for _, pm := range methods {
		if pm.IsDefault {
			defaults++
		}
	}
	if len(methods) == 0 {
		require.Equal(t, 0, defaults)
		return
	}
	require.Equal(t, 1, defaults, "expected exactly one default among %d records", len(methods))
}
