package webhook

import "errors"

// Errors returned while verifying inbound webhook signatures and by the
// resilience helpers. Verification failures are always wrapped with one of
// these sentinels so callers can map them to HTTP status codes with errors.Is.
var (
	ErrMissingSecret          = errors.New("webhook signing secret is not configured")
	ErrMissingHeader          = errors.New("webhook signature header is missing")
	ErrMalformedHeader        = errors.New("webhook signature header is malformed")
	ErrNoValidSignature       = errors.New("no webhook signature matches the payload")
	ErrTimestampOutOfWindow   = errors.New("webhook signature timestamp is outside the tolerance window")
	ErrInvalidPayload         = errors.New("invalid webhook payload")
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrInvalidCircuitSettings = errors.New("invalid circuit breaker settings")
)

// IsCircuitOpen checks if an error indicates the circuit breaker is open
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsSignatureError reports whether err is a rejection of the request itself
// (as opposed to a server-side misconfiguration such as a missing secret).
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrMissingHeader) ||
		errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrNoValidSignature) ||
		errors.Is(err, ErrTimestampOutOfWindow) ||
		errors.Is(err, ErrInvalidPayload)
}
