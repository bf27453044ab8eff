package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/ManuelReschke/CardVault/internal/pkg/logger"
	"go.uber.org/zap"
)

// OutcomeRecorder counts delivery outcomes.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome string) error
}

// ProcessResult is everything known about one delivery after processing.
type ProcessResult struct {
	Outcome        Outcome
	EventID        string
	EventType      string
	Reconciliation Result
	Err            error
}

// WebhookProcessor runs a raw delivery through verification, the event
// ledger, decoding and reconciliation.
type WebhookProcessor struct {
	verifier *SignatureVerifier
	repo     Repository
	engine   *Engine
	recorder OutcomeRecorder
	log      *zap.Logger
}

// NewWebhookProcessor wires the pipeline. recorder and log may be nil.
func NewWebhookProcessor(verifier *SignatureVerifier, repo Repository, engine *Engine, recorder OutcomeRecorder, log *zap.Logger) *WebhookProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookProcessor{
		verifier: verifier,
		repo:     repo,
		engine:   engine,
		recorder: recorder,
		log:      log.Named("webhook"),
	}
}

// Process handles one delivery. The payload must be the exact bytes received.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, header string) ProcessResult {
	if _, err := p.verifier.Verify(payload, header); err != nil {
		p.log.Warn("webhook rejected",
			zap.Error(err),
			zap.String("signature", logger.MaskSignatureHeader(header)),
			zap.Int("payload_bytes", len(payload)),
		)
		return p.finish(ctx, ProcessResult{Outcome: OutcomeRejected, Err: err})
	}

	event, decodeErr := DecodeEvent(payload)
	ledger := &models.BillingWebhookEvent{
		Provider:       models.BillingProviderStripe,
		PayloadJSON:    string(payload),
		SignatureValid: true,
	}
	if event != nil {
		ledger.ProviderEventID = event.ID
		ledger.EventType = string(event.Type)
	} else {
		sum := sha256.Sum256(payload)
		ledger.ProviderEventID = "hash:" + hex.EncodeToString(sum[:])
	}

	res := ProcessResult{EventID: ledger.ProviderEventID, EventType: ledger.EventType}

	created, stored, err := p.repo.CreateWebhookEventIfNotExists(ctx, ledger)
	if err != nil {
		// Reconciliation is idempotent without the ledger, so keep going.
		p.log.Error("webhook ledger write failed", zap.Error(err), zap.String("event_id", res.EventID))
		stored = nil
	} else if !created && stored.Completed() {
		res.Outcome = OutcomeDuplicate
		return p.finish(ctx, res)
	}

	if decodeErr != nil {
		res.Outcome = OutcomeDecodeFailed
		res.Err = decodeErr
		p.markProcessed(ctx, stored, res)
		return p.finish(ctx, res)
	}

	res.Reconciliation = p.engine.Apply(ctx, event)
	res.Outcome = outcomeFor(res.Reconciliation)
	res.Err = res.Reconciliation.Cause
	p.markProcessed(ctx, stored, res)
	return p.finish(ctx, res)
}

// Replay re-applies a ledger row whose earlier processing failed. The row
// must have passed signature verification when it was received.
func (p *WebhookProcessor) Replay(ctx context.Context, stored models.BillingWebhookEvent) ProcessResult {
	res := ProcessResult{EventID: stored.ProviderEventID, EventType: stored.EventType}
	if !stored.SignatureValid {
		res.Outcome = OutcomeRejected
		res.Err = errors.New("ledger row was not verified")
		return res
	}

	event, err := DecodeEvent([]byte(stored.PayloadJSON))
	if err != nil {
		res.Outcome = OutcomeDecodeFailed
		res.Err = err
		p.markProcessed(ctx, &stored, res)
		return p.finish(ctx, res)
	}

	res.Reconciliation = p.engine.Apply(ctx, event)
	res.Outcome = outcomeFor(res.Reconciliation)
	res.Err = res.Reconciliation.Cause
	p.markProcessed(ctx, &stored, res)
	return p.finish(ctx, res)
}

func (p *WebhookProcessor) markProcessed(ctx context.Context, stored *models.BillingWebhookEvent, res ProcessResult) {
	if stored == nil || stored.ID == 0 {
		return
	}
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	if err := p.repo.MarkWebhookProcessed(ctx, stored.ID, string(res.Outcome), msg); err != nil {
		p.log.Error("mark webhook processed failed", zap.Error(err), zap.Uint("ledger_id", stored.ID))
	}
}

func (p *WebhookProcessor) finish(ctx context.Context, res ProcessResult) ProcessResult {
	if p.recorder != nil {
		if err := p.recorder.Record(ctx, string(res.Outcome)); err != nil {
			p.log.Debug("record webhook outcome failed", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.String("event_id", res.EventID),
		zap.String("event_type", res.EventType),
	}
	switch res.Outcome {
	case OutcomeRejected:
		// already logged with the masked header
	case OutcomeFailed, OutcomeDecodeFailed:
		p.log.Error("webhook processing failed", append(fields, zap.Error(res.Err))...)
	default:
		p.log.Info("webhook processed", fields...)
	}
	return res
}

func outcomeFor(r Result) Outcome {
	switch r.Status {
	case StatusApplied:
		return OutcomeApplied
	case StatusSkipped:
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

// String is used in operator output.
func (r ProcessResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s %s (%s): %v", r.Outcome, r.EventID, r.EventType, r.Err)
	}
	return fmt.Sprintf("%s %s (%s)", r.Outcome, r.EventID, r.EventType)
}
