package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// EventType is the provider event name.
type EventType string

const (
	EventSetupIntentSucceeded  EventType = "setup_intent.succeeded"
	EventPaymentMethodDetached EventType = "payment_method.detached"
)

// VerifiedEvent is a decoded event from an authenticated payload. Data is one
// of SetupSucceeded, PaymentMethodDetached or Ignored.
type VerifiedEvent struct {
	ID         string
	Type       EventType
	OccurredAt time.Time
	Data       EventData
}

// EventData is the closed set of event variants.
type EventData interface {
	eventData()
}

// SetupSucceeded reports a completed card setup for a customer.
type SetupSucceeded struct {
	SetupIntentID   string
	PaymentMethodID string
	CustomerID      string
}

// PaymentMethodDetached reports a payment method removed from its customer.
type PaymentMethodDetached struct {
	PaymentMethodID string
}

// Ignored is any event type the registry does not act on.
type Ignored struct {
	RawType string
}

func (SetupSucceeded) eventData()        {}
func (PaymentMethodDetached) eventData() {}
func (Ignored) eventData()               {}

// DecodeEvent parses a verified payload. Unknown event types decode to
// Ignored; structurally invalid payloads return a *DecodeError.
func DecodeEvent(payload []byte) (*VerifiedEvent, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if strings.TrimSpace(ev.ID) == "" {
		return nil, &DecodeError{Err: errors.New("event id is missing")}
	}
	if strings.TrimSpace(string(ev.Type)) == "" {
		return nil, &DecodeError{Err: errors.New("event type is missing")}
	}

	out := &VerifiedEvent{
		ID:         ev.ID,
		Type:       EventType(ev.Type),
		OccurredAt: time.Unix(ev.Created, 0).UTC(),
	}

	switch out.Type {
	case EventSetupIntentSucceeded:
		data, err := decodeSetupSucceeded(ev.Data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		out.Data = data
	case EventPaymentMethodDetached:
		data, err := decodePaymentMethodDetached(ev.Data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		out.Data = data
	default:
		out.Data = Ignored{RawType: string(ev.Type)}
	}
	return out, nil
}

func decodeSetupSucceeded(data *stripe.EventData) (SetupSucceeded, error) {
	if data == nil || len(data.Raw) == 0 {
		return SetupSucceeded{}, errors.New("event data object is missing")
	}
	var si stripe.SetupIntent
	if err := json.Unmarshal(data.Raw, &si); err != nil {
		return SetupSucceeded{}, err
	}
	if si.ID == "" {
		return SetupSucceeded{}, errors.New("setup intent id is missing")
	}
	if si.PaymentMethod == nil || si.PaymentMethod.ID == "" {
		return SetupSucceeded{}, ErrMissingPaymentMethod
	}

	out := SetupSucceeded{
		SetupIntentID:   si.ID,
		PaymentMethodID: si.PaymentMethod.ID,
	}
	if si.Customer != nil {
		out.CustomerID = si.Customer.ID
	}
	return out, nil
}

func decodePaymentMethodDetached(data *stripe.EventData) (PaymentMethodDetached, error) {
	if data == nil || len(data.Raw) == 0 {
		return PaymentMethodDetached{}, errors.New("event data object is missing")
	}
	var pm stripe.PaymentMethod
	if err := json.Unmarshal(data.Raw, &pm); err != nil {
		return PaymentMethodDetached{}, err
	}
	if pm.ID == "" {
		return PaymentMethodDetached{}, errors.New("payment method id is missing")
	}
	return PaymentMethodDetached{PaymentMethodID: pm.ID}, nil
}
