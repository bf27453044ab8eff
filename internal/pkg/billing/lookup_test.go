package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolverFixture(t *testing.T) (*fixture, *Resolver, *models.User) {
	t.Helper()
	f := newFixture(t)
	f.provider.addSetupIntent(SetupIntent{ID: "seti_1", CustomerID: "cus_1", PaymentMethodID: "pm_1", Status: SetupIntentStatusSucceeded})
	f.provider.addSetupIntent(SetupIntent{ID: "seti_other", CustomerID: "cus_9", PaymentMethodID: "pm_9", Status: SetupIntentStatusSucceeded})
	f.provider.addSetupIntent(SetupIntent{ID: "seti_pending", CustomerID: "cus_1", Status: "requires_payment_method"})
	f.provider.addSetupIntent(SetupIntent{ID: "seti_nopm", CustomerID: "cus_1", Status: SetupIntentStatusSucceeded})

	user, err := f.repo.GetUserByID(context.Background(), 1)
	require.NoError(t, err)
	return f, NewResolver(f.provider, f.engine, testConfig()), user
}

func TestResolver_Success(t *testing.T) {
	_, r, user := newResolverFixture(t)

	pmID, err := r.Resolve(context.Background(), user, " seti_1 ")
	require.NoError(t, err)
	assert.Equal(t, "pm_1", pmID)
}

func TestResolver_OwnershipMismatch(t *testing.T) {
	f, r, user := newResolverFixture(t)

	pmID, res, err := r.ResolveAndApply(context.Background(), user, "seti_other")
	var mismatch *OwnershipMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "seti_other", mismatch.ResourceID)
	assert.Empty(t, pmID)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, f.repo.PaymentMethods(1))
	assert.Empty(t, f.repo.PaymentMethods(2))
}

func TestResolver_UserWithoutCustomerCannotResolve(t *testing.T) {
	_, r, _ := newResolverFixture(t)

	_, err := r.Resolve(context.Background(), &models.User{ID: 3}, "seti_1")
	var mismatch *OwnershipMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestResolver_NotCompleted(t *testing.T) {
	_, r, user := newResolverFixture(t)

	_, err := r.Resolve(context.Background(), user, "seti_pending")
	var notCompleted *NotCompletedError
	require.True(t, errors.As(err, &notCompleted))
	assert.Equal(t, "requires_payment_method", notCompleted.Status)
}

func TestResolver_MissingPaymentMethod(t *testing.T) {
	_, r, user := newResolverFixture(t)

	_, err := r.Resolve(context.Background(), user, "seti_nopm")
	assert.ErrorIs(t, err, ErrMissingPaymentMethod)
}

func TestResolver_ResourceIDRequired(t *testing.T) {
	_, r, user := newResolverFixture(t)

	_, err := r.Resolve(context.Background(), user, "  ")
	assert.ErrorIs(t, err, ErrResourceIDRequired)
}

func TestResolver_ProviderFailures(t *testing.T) {
	f, r, user := newResolverFixture(t)

	_, err := r.Resolve(context.Background(), user, "seti_unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seti_unknown")

	f.provider.delay = 200 * time.Millisecond
	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	slow := NewResolver(f.provider, nil, cfg)
	_, err = slow.Resolve(context.Background(), user, "seti_1")
	assert.ErrorIs(t, err, ErrFetchTimeout)
}

func TestResolver_ResolveAndApplyConverges(t *testing.T) {
	f, r, user := newResolverFixture(t)
	ctx := context.Background()

	pmID, res, err := r.ResolveAndApply(ctx, user, "seti_1")
	require.NoError(t, err)
	assert.Equal(t, "pm_1", pmID)
	assert.Equal(t, StatusApplied, res.Status)

	// The webhook for the same setup arrives afterwards.
	res = f.engine.Apply(ctx, setupEvent("evt_1", "cus_1", "pm_1"))
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, SkipAlreadyApplied, res.Reason)

	methods := f.repo.PaymentMethods(1)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].IsDefault)
}
