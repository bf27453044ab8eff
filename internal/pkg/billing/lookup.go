package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/CardVault/app/models"
)

// Resolver looks up a client-confirmed setup for an authenticated user. It is
// the fallback for clients that cannot wait for the webhook.
type Resolver struct {
	provider ProviderClient
	engine   *Engine
	cfg      Config
}

// NewResolver creates a resolver. engine may be nil when only Resolve is used.
func NewResolver(provider ProviderClient, engine *Engine, cfg Config) *Resolver {
	return &Resolver{provider: provider, engine: engine, cfg: cfg}
}

// Resolve returns the payment method id attached to setup intent resourceID
// after checking that it belongs to user and has succeeded. It changes no state.
func (r *Resolver) Resolve(ctx context.Context, user *models.User, resourceID string) (string, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return "", ErrResourceIDRequired
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	si, err := r.fetchSetupIntent(ctx, resourceID)
	if err != nil {
		return "", err
	}

	if si.CustomerID == "" || !user.HasStripeCustomer() || si.CustomerID != user.StripeCustomerID {
		return "", &OwnershipMismatchError{ResourceID: resourceID}
	}
	if si.Status != SetupIntentStatusSucceeded {
		return "", &NotCompletedError{Status: si.Status}
	}
	if si.PaymentMethodID == "" {
		return "", ErrMissingPaymentMethod
	}
	return si.PaymentMethodID, nil
}

// ResolveAndApply resolves resourceID and then records the payment method
// through the engine. The returned Result is zero when Resolve fails.
func (r *Resolver) ResolveAndApply(ctx context.Context, user *models.User, resourceID string) (string, Result, error) {
	pmID, err := r.Resolve(ctx, user, resourceID)
	if err != nil {
		return "", Result{}, err
	}
	if r.engine == nil {
		return pmID, skipped(SkipUnhandledType), nil
	}
	res := r.engine.ApplySetupSucceeded(ctx, SetupSucceeded{
		SetupIntentID:   strings.TrimSpace(resourceID),
		PaymentMethodID: pmID,
		CustomerID:      user.StripeCustomerID,
	})
	return pmID, res, nil
}

func (r *Resolver) fetchSetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.fetchTimeout())
	defer cancel()

	si, err := r.provider.GetSetupIntent(fetchCtx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: setup intent %s", ErrFetchTimeout, id)
		}
		return nil, fmt.Errorf("fetch setup intent %s: %w", id, err)
	}
	if si == nil {
		return nil, fmt.Errorf("fetch setup intent %s: empty response", id)
	}
	return si, nil
}
