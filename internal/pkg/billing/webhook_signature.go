package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeader carries "t=<unix>,v1=<hex>[,v1=<hex>...]".
	SignatureHeader = "Stripe-Signature"

	DefaultSignatureTolerance = 5 * time.Minute

	signatureScheme = "v1"
)

// SignedEnvelope is a payload whose signature has been verified.
type SignedEnvelope struct {
	Timestamp time.Time
	Payload   []byte
}

// SignatureVerifier authenticates webhook payloads against one or more
// shared secrets. Several secrets may be active while rotating them.
type SignatureVerifier struct {
	secrets   []string
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier creates a verifier. A non-positive tolerance uses
// DefaultSignatureTolerance.
func NewSignatureVerifier(secrets []string, tolerance time.Duration) *SignatureVerifier {
	clean := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &SignatureVerifier{secrets: clean, tolerance: tolerance, now: time.Now}
}

// Verify checks payload against the signature header using the current time.
func (v *SignatureVerifier) Verify(payload []byte, header string) (*SignedEnvelope, error) {
	return verifySignature(payload, header, v.secrets, v.tolerance, v.now())
}

// VerifyWebhookSignature checks a single secret. The HMAC-SHA256 is computed
// over "<t>.<payload>" and compared in constant time with every v1 token.
func VerifyWebhookSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (*SignedEnvelope, error) {
	return verifySignature(payload, header, []string{strings.TrimSpace(secret)}, tolerance, now)
}

func verifySignature(payload []byte, header string, secrets []string, tolerance time.Duration, now time.Time) (*SignedEnvelope, error) {
	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	matched := false
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		expected := computeSignature(ts, payload, secret)
		for _, sig := range signatures {
			if hmac.Equal(expected, sig) {
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}
	if !matched {
		return nil, &VerificationError{Reason: ReasonSignatureMismatch}
	}

	age := now.Sub(ts)
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return nil, &VerificationError{
			Reason: ReasonStaleTimestamp,
			Detail: "timestamp outside tolerance of " + tolerance.String(),
		}
	}

	return &SignedEnvelope{Timestamp: ts, Payload: payload}, nil
}

func parseSignatureHeader(header string) (time.Time, [][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Time{}, nil, &VerificationError{Reason: ReasonMalformedHeader, Detail: "header is empty"}
	}

	var (
		ts         time.Time
		hasTS      bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return time.Time{}, nil, &VerificationError{Reason: ReasonMalformedHeader, Detail: "expected key=value pairs"}
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, nil, &VerificationError{Reason: ReasonMalformedHeader, Detail: "invalid timestamp"}
			}
			ts = time.Unix(unix, 0)
			hasTS = true
		case signatureScheme:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !hasTS {
		return time.Time{}, nil, &VerificationError{Reason: ReasonMalformedHeader, Detail: "missing timestamp"}
	}
	if len(signatures) == 0 {
		return time.Time{}, nil, &VerificationError{Reason: ReasonMalformedHeader, Detail: "no " + signatureScheme + " signatures"}
	}
	return ts, signatures, nil
}

func computeSignature(ts time.Time, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a header for payload, used by tests and local tooling.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	sig := computeSignature(ts, payload, secret)
	return "t=" + strconv.FormatInt(ts.Unix(), 10) + "," + signatureScheme + "=" + hex.EncodeToString(sig)
}
