package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/CardVault/app/models"
	"go.uber.org/zap"
)

// Engine applies verified events to the payment-method registry. It is the
// only writer of payment-method records.
type Engine struct {
	repo     Repository
	provider ProviderClient
	cfg      Config
	log      *zap.Logger
}

// NewEngine creates a reconciliation engine. A nil logger disables logging.
func NewEngine(repo Repository, provider ProviderClient, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{repo: repo, provider: provider, cfg: cfg, log: log.Named("reconcile")}
}

// Apply performs the side effects of event. Failures are reported in the
// returned Result and never panic.
func (e *Engine) Apply(ctx context.Context, event *VerifiedEvent) Result {
	if event == nil {
		return failed(errors.New("event is nil"))
	}

	var res Result
	switch data := event.Data.(type) {
	case SetupSucceeded:
		res = e.ApplySetupSucceeded(ctx, data)
	case PaymentMethodDetached:
		res = e.applyDetached(ctx, data)
	case Ignored:
		res = skipped(SkipUnhandledType)
	default:
		res = failed(fmt.Errorf("unsupported event data %T", event.Data))
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("status", string(res.Status)),
	}
	switch res.Status {
	case StatusFailed:
		e.log.Warn("reconciliation failed", append(fields, zap.Error(res.Cause))...)
	case StatusSkipped:
		e.log.Debug("reconciliation skipped", append(fields, zap.String("reason", string(res.Reason)))...)
	default:
		e.log.Info("reconciliation applied", append(fields,
			zap.Uint("user_id", res.UserID),
			zap.String("payment_method_id", res.PaymentMethodID),
		)...)
	}
	return res
}

// ApplySetupSucceeded records the payment method of a completed setup.
// The first record of a user becomes default; so does a new record for a user
// left without a default.
func (e *Engine) ApplySetupSucceeded(ctx context.Context, data SetupSucceeded) Result {
	pmID := strings.TrimSpace(data.PaymentMethodID)
	if pmID == "" {
		return failed(ErrMissingPaymentMethod)
	}

	user, err := e.repo.FindUserByCustomerID(ctx, strings.TrimSpace(data.CustomerID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return skipped(SkipUnknownCustomer)
		}
		return failed(fmt.Errorf("find user by customer: %w", err))
	}

	existing, err := e.repo.FindPaymentMethod(ctx, user.ID, pmID)
	switch {
	case err == nil:
		res := skipped(SkipAlreadyApplied)
		res.UserID = user.ID
		res.PaymentMethodID = existing.ProviderPaymentMethodID
		return res
	case !errors.Is(err, ErrPaymentMethodNotFound):
		return failed(fmt.Errorf("find payment method: %w", err))
	}

	details, err := e.fetchPaymentMethod(ctx, pmID)
	if err != nil {
		return failed(err)
	}

	record := &models.PaymentMethod{
		UserID:                  user.ID,
		ProviderPaymentMethodID: pmID,
		Brand:                   details.Type,
	}
	if details.Card != nil {
		record.Brand = details.Card.Brand
		record.Last4 = details.Card.Last4
		record.ExpMonth = details.Card.ExpMonth
		record.ExpYear = details.Card.ExpYear
	}

	var created bool
	var healed bool
	err = e.repo.WithUserLock(ctx, user.ID, func(store PaymentMethodStore) error {
		hasDefault, err := store.HasDefault()
		if err != nil {
			return err
		}
		count, err := store.CountPaymentMethods()
		if err != nil {
			return err
		}
		record.IsDefault = !hasDefault
		created, err = store.UpsertPaymentMethod(record)
		if err != nil {
			return err
		}
		healed = created && !hasDefault && count > 0
		return nil
	})
	if err != nil {
		return failed(fmt.Errorf("store payment method: %w", err))
	}

	if !created {
		res := skipped(SkipAlreadyApplied)
		res.UserID = user.ID
		res.PaymentMethodID = pmID
		return res
	}

	res := Result{
		Status:          StatusApplied,
		UserID:          user.ID,
		PaymentMethodID: pmID,
		Created:         true,
	}
	if healed {
		res.PromotedID = record.ID
	}
	return res
}

func (e *Engine) applyDetached(ctx context.Context, data PaymentMethodDetached) Result {
	pmID := strings.TrimSpace(data.PaymentMethodID)
	found, err := e.repo.FindPaymentMethodByProviderID(ctx, pmID)
	if err != nil {
		if errors.Is(err, ErrPaymentMethodNotFound) {
			return skipped(SkipUnknownPaymentMethod)
		}
		return failed(fmt.Errorf("find payment method: %w", err))
	}

	var deleted bool
	var promoted uint
	err = e.repo.WithUserLock(ctx, found.UserID, func(store PaymentMethodStore) error {
		current, err := store.FindPaymentMethod(pmID)
		if errors.Is(err, ErrPaymentMethodNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := store.DeletePaymentMethod(current.ID); err != nil {
			return err
		}
		deleted = true

		hasDefault, err := store.HasDefault()
		if err != nil || hasDefault {
			return err
		}
		next, err := store.LatestPaymentMethod()
		if errors.Is(err, ErrPaymentMethodNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := store.SetDefault(next.ID); err != nil {
			return err
		}
		promoted = next.ID
		return nil
	})
	if err != nil {
		return failed(fmt.Errorf("delete payment method: %w", err))
	}

	if !deleted {
		res := skipped(SkipUnknownPaymentMethod)
		res.UserID = found.UserID
		return res
	}
	return Result{
		Status:          StatusApplied,
		UserID:          found.UserID,
		PaymentMethodID: pmID,
		Deleted:         true,
		PromotedID:      promoted,
	}
}

func (e *Engine) fetchPaymentMethod(ctx context.Context, id string) (*PaymentMethodDetails, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.fetchTimeout())
	defer cancel()

	details, err := e.provider.GetPaymentMethod(fetchCtx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: payment method %s", ErrFetchTimeout, id)
		}
		return nil, fmt.Errorf("fetch payment method %s: %w", id, err)
	}
	if details == nil {
		return nil, fmt.Errorf("fetch payment method %s: empty response", id)
	}
	return details, nil
}
