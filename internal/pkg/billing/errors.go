package billing

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrFetchTimeout          = errors.New("provider fetch timed out")
	ErrMissingPaymentMethod  = errors.New("setup intent has no payment method")
	ErrResourceIDRequired    = errors.New("resource id is required")
)

// FailureReason classifies a rejected webhook signature.
type FailureReason string

const (
	ReasonMalformedHeader   FailureReason = "malformed_header"
	ReasonSignatureMismatch FailureReason = "signature_mismatch"
	ReasonStaleTimestamp    FailureReason = "stale_timestamp"
)

// VerificationError is returned when a webhook cannot be authenticated.
type VerificationError struct {
	Reason FailureReason
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return "webhook signature verification failed: " + string(e.Reason)
	}
	return fmt.Sprintf("webhook signature verification failed: %s: %s", e.Reason, e.Detail)
}

// DecodeError is returned when a verified payload is not a usable event.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode webhook event: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// OwnershipMismatchError rejects a lookup of another customer's resource.
type OwnershipMismatchError struct {
	ResourceID string
}

func (e *OwnershipMismatchError) Error() string {
	return fmt.Sprintf("resource %s does not belong to the authenticated user", e.ResourceID)
}

// NotCompletedError rejects a lookup of a setup flow that has not succeeded.
type NotCompletedError struct {
	Status string
}

func (e *NotCompletedError) Error() string {
	return fmt.Sprintf("setup intent not completed, status: %s", e.Status)
}
