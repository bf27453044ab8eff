package billing

import (
	"errors"
	"net/http"
)

// Outcome is the pipeline result of one webhook delivery.
type Outcome string

const (
	OutcomeRejected     Outcome = "rejected"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDecodeFailed Outcome = "decode_failed"
	OutcomeApplied      Outcome = "applied"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFailed       Outcome = "failed"
)

// Outcomes lists every outcome, in reporting order.
var Outcomes = []Outcome{
	OutcomeRejected,
	OutcomeDuplicate,
	OutcomeDecodeFailed,
	OutcomeApplied,
	OutcomeSkipped,
	OutcomeFailed,
}

// Acknowledgement is the transport response for a delivery. Exactly one of
// JSON and Text is set.
type Acknowledgement struct {
	Status int
	JSON   map[string]interface{}
	Text   string
}

type responsePolicy struct {
	status      int
	acknowledge bool
}

// Only authentication failures are refused so the provider retries them.
// Everything past verification is acknowledged, failures included.
var deliveryPolicy = map[Outcome]responsePolicy{
	OutcomeRejected:     {status: http.StatusBadRequest},
	OutcomeDuplicate:    {status: http.StatusOK, acknowledge: true},
	OutcomeDecodeFailed: {status: http.StatusOK, acknowledge: true},
	OutcomeApplied:      {status: http.StatusOK, acknowledge: true},
	OutcomeSkipped:      {status: http.StatusOK, acknowledge: true},
	OutcomeFailed:       {status: http.StatusOK, acknowledge: true},
}

// Respond maps a processing result to its acknowledgement.
func Respond(res ProcessResult) Acknowledgement {
	policy, ok := deliveryPolicy[res.Outcome]
	if !ok {
		policy = deliveryPolicy[OutcomeFailed]
	}
	if policy.acknowledge {
		return Acknowledgement{Status: policy.status, JSON: map[string]interface{}{"received": true}}
	}
	return Acknowledgement{Status: policy.status, Text: "Webhook Error: " + rejectionReason(res.Err)}
}

func rejectionReason(err error) string {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return string(verr.Reason)
	}
	if err != nil {
		return err.Error()
	}
	return "unauthenticated"
}
