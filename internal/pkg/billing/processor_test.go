package billing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordingCounter) Record(ctx context.Context, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[outcome]++
	return nil
}

func (r *recordingCounter) get(outcome Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[string(outcome)]
}

func newProcessor(t *testing.T, f *fixture, log *zap.Logger) (*WebhookProcessor, *recordingCounter) {
	t.Helper()
	counter := &recordingCounter{}
	verifier := NewSignatureVerifier([]string{testSecret}, time.Minute)
	return NewWebhookProcessor(verifier, f.repo, f.engine, counter, log), counter
}

func sign(payload []byte) string {
	return SignPayload(payload, testSecret, time.Now())
}

func TestProcessor_AppliesVerifiedEvent(t *testing.T) {
	f := newFixture(t)
	p, counter := newProcessor(t, f, nil)
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")

	res := p.Process(context.Background(), payload, sign(payload))
	require.Equal(t, OutcomeApplied, res.Outcome, "%v", res.Err)
	assert.Equal(t, "evt_1", res.EventID)
	assert.Equal(t, string(EventSetupIntentSucceeded), res.EventType)
	assert.Equal(t, 1, counter.get(OutcomeApplied))

	events := f.repo.WebhookEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].Completed())
	assert.Equal(t, string(OutcomeApplied), events[0].Outcome)
	assert.Len(t, f.repo.PaymentMethods(1), 1)
}

func TestProcessor_RejectedDeliveryHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	p, counter := newProcessor(t, f, nil)
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")
	header := sign(payload)

	tampered := []byte(strings.Replace(string(payload), "pm_1", "pm_2", 1))
	cases := map[string]struct {
		payload []byte
		header  string
	}{
		"byte flip":    {payload: tampered, header: header},
		"other secret": {payload: payload, header: SignPayload(payload, "whsec_other", time.Now())},
		"stale":        {payload: payload, header: SignPayload(payload, testSecret, time.Now().Add(-time.Hour))},
		"no header":    {payload: payload, header: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := p.Process(context.Background(), tc.payload, tc.header)
			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.Equal(t, 400, Respond(res).Status)
		})
	}

	assert.Empty(t, f.repo.PaymentMethods(1))
	assert.Empty(t, f.repo.WebhookEvents())
	assert.Equal(t, len(cases), counter.get(OutcomeRejected))
	assert.Zero(t, f.provider.calls())
}

func TestProcessor_DuplicateDeliveryIsShortCircuited(t *testing.T) {
	f := newFixture(t)
	p, counter := newProcessor(t, f, nil)
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")

	require.Equal(t, OutcomeApplied, p.Process(context.Background(), payload, sign(payload)).Outcome)
	calls := f.provider.calls()

	res := p.Process(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, 200, Respond(res).Status)
	assert.Equal(t, calls, f.provider.calls())
	assert.Equal(t, 1, counter.get(OutcomeDuplicate))
	assert.Len(t, f.repo.WebhookEvents(), 1)
}

func TestProcessor_FailedDeliveryIsRetriedOnRedelivery(t *testing.T) {
	f := newFixture(t)
	p, _ := newProcessor(t, f, nil)
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")

	f.provider.err = errors.New("api unavailable")
	res := p.Process(context.Background(), payload, sign(payload))
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 200, Respond(res).Status)

	events := f.repo.WebhookEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Completed())
	assert.Contains(t, events[0].ProcessingError, "api unavailable")

	f.provider.err = nil
	res = p.Process(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, f.repo.WebhookEvents()[0].Completed())
}

func TestProcessor_DecodeFailureIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)
	p, counter := newProcessor(t, f, zap.New(core))
	payload := []byte(`{"object":"event","type":"setup_intent.succeeded"}`)

	res := p.Process(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeDecodeFailed, res.Outcome)
	assert.Equal(t, 200, Respond(res).Status)
	assert.True(t, strings.HasPrefix(res.EventID, "hash:"))
	assert.Equal(t, 1, counter.get(OutcomeDecodeFailed))

	events := f.repo.WebhookEvents()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ProcessingError)
	assert.Equal(t, 1, logs.FilterMessage("webhook processing failed").Len())
}

func TestProcessor_SkippedEventsAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	p, _ := newProcessor(t, f, nil)

	ignored := eventPayload(t, "evt_1", "customer.created", map[string]interface{}{"id": "cus_2"})
	res := p.Process(context.Background(), ignored, sign(ignored))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, SkipUnhandledType, res.Reconciliation.Reason)

	unknown := setupPayload(t, "evt_2", "cus_nobody", "pm_1")
	res = p.Process(context.Background(), unknown, sign(unknown))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, SkipUnknownCustomer, res.Reconciliation.Reason)
}

func TestProcessor_RejectedLogDoesNotLeakSignature(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)
	p, _ := newProcessor(t, f, zap.New(core))
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")
	header := SignPayload(payload, "whsec_other", time.Now())
	_, token, _ := strings.Cut(header, "v1=")

	p.Process(context.Background(), payload, header)

	entries := logs.FilterMessage("webhook rejected").All()
	require.Len(t, entries, 1)
	logged := entries[0].ContextMap()["signature"].(string)
	assert.NotContains(t, logged, token)
	assert.NotContains(t, logged, testSecret)
}

func TestProcessor_ReplayFailedLedgerRows(t *testing.T) {
	f := newFixture(t)
	p, _ := newProcessor(t, f, nil)
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")

	f.repo.UpsertErr = errors.New("lock wait timeout")
	require.Equal(t, OutcomeFailed, p.Process(context.Background(), payload, sign(payload)).Outcome)
	f.repo.UpsertErr = nil

	failedRows, err := f.repo.ListFailedWebhookEvents(context.Background(), "stripe", 10)
	require.NoError(t, err)
	require.Len(t, failedRows, 1)

	res := p.Replay(context.Background(), failedRows[0])
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Len(t, f.repo.PaymentMethods(1), 1)

	failedRows, err = f.repo.ListFailedWebhookEvents(context.Background(), "stripe", 10)
	require.NoError(t, err)
	assert.Empty(t, failedRows)
}

func TestProcessor_ConcurrentDeliveriesOfSameEvent(t *testing.T) {
	f := newFixture(t)
	p, _ := newProcessor(t, f, nil)
	payload := setupPayload(t, "evt_1", "cus_1", "pm_1")
	header := sign(payload)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.Process(context.Background(), payload, header)
			assert.NotEqual(t, OutcomeFailed, res.Outcome)
		}()
	}
	wg.Wait()

	methods := f.repo.PaymentMethods(1)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].IsDefault)
	assert.Len(t, f.repo.WebhookEvents(), 1)
}
