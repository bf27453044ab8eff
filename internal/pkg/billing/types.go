package billing

// CardDetails are the immutable card attributes captured from the provider.
type CardDetails struct {
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// SetupIntent is the provider-neutral view of a completed card-setup flow.
type SetupIntent struct {
	ID              string
	CustomerID      string
	PaymentMethodID string
	Status          string
}

// PaymentMethodDetails is the provider-neutral view of a payment method.
type PaymentMethodDetails struct {
	ID         string
	CustomerID string
	Type       string
	Card       *CardDetails
}

// ResultStatus is the coarse outcome of applying one event.
type ResultStatus string

const (
	StatusApplied ResultStatus = "applied"
	StatusSkipped ResultStatus = "skipped"
	StatusFailed  ResultStatus = "failed"
)

// SkipReason explains a benign no-op.
type SkipReason string

const (
	SkipUnknownCustomer      SkipReason = "unknown_customer"
	SkipUnhandledType        SkipReason = "unhandled_type"
	SkipAlreadyApplied       SkipReason = "already_applied"
	SkipUnknownPaymentMethod SkipReason = "unknown_payment_method"
)

// Result describes what reconciliation did with an event. Failures are carried
// in Cause and never surface as transport errors.
type Result struct {
	Status          ResultStatus
	Reason          SkipReason
	Cause           error
	UserID          uint
	PaymentMethodID string
	Created         bool
	Deleted         bool
	// PromotedID is the record that became default as a side effect, 0 if none.
	PromotedID uint
}

func skipped(reason SkipReason) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

func failed(cause error) Result {
	return Result{Status: StatusFailed, Cause: cause}
}

// ErrorString returns the failure cause as text, or "" for non-failures.
func (r Result) ErrorString() string {
	if r.Cause == nil {
		return ""
	}
	return r.Cause.Error()
}
