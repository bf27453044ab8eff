package billing

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v82"
)

// ProviderClient fetches provider resources by id.
type ProviderClient interface {
	GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error)
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethodDetails, error)
}

// StripeClient implements ProviderClient with stripe-go.
type StripeClient struct {
	client *stripe.Client
}

// NewStripeClient creates a client from cfg. APIBaseURL points the client at
// stripe-mock or another compatible endpoint.
func NewStripeClient(cfg Config) *StripeClient {
	var opts []stripe.ClientOption
	if cfg.APIBaseURL != "" {
		backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			URL:        stripe.String(cfg.APIBaseURL),
			HTTPClient: &http.Client{Timeout: cfg.fetchTimeout()},
		})
		opts = append(opts, stripe.WithBackends(backends))
	}
	return &StripeClient{client: stripe.NewClient(cfg.SecretKey, opts...)}
}

func (c *StripeClient) GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	si, err := c.client.V1SetupIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return setupIntentFromStripe(si), nil
}

func (c *StripeClient) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethodDetails, error) {
	pm, err := c.client.V1PaymentMethods.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return paymentMethodFromStripe(pm), nil
}

func setupIntentFromStripe(si *stripe.SetupIntent) *SetupIntent {
	out := &SetupIntent{
		ID:     si.ID,
		Status: string(si.Status),
	}
	if si.Customer != nil {
		out.CustomerID = si.Customer.ID
	}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	return out
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod) *PaymentMethodDetails {
	out := &PaymentMethodDetails{
		ID:   pm.ID,
		Type: string(pm.Type),
	}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Card = &CardDetails{
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: int(pm.Card.ExpMonth),
			ExpYear:  int(pm.Card.ExpYear),
		}
	}
	return out
}

// SetupIntentStatusSucceeded is the terminal-success setup status.
const SetupIntentStatusSucceeded = string(stripe.SetupIntentStatusSucceeded)
