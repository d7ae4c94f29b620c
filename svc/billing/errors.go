package billing

import "errors"

var (
	ErrNotConfigured        = errors.New("billing: processor is not configured")
	ErrInvalidSignature     = errors.New("billing: invalid webhook signature")
	ErrMalformedEvent       = errors.New("billing: malformed webhook event")
	ErrProcessorUnavailable = errors.New("billing: payment processor unavailable")
	ErrReturnURLNotAllowed  = errors.New("billing: return URL is not allowed")
	ErrStoreUnavailable     = errors.New("billing: subscription store unavailable")
	ErrCircuitOpen          = errors.New("billing: processor circuit is open")
	ErrCustomerNotCached    = errors.New("billing: customer not cached")
	ErrEmptyEmail           = errors.New("billing: email is required")
	ErrInvalidStatus        = errors.New("billing: invalid subscription status")
	ErrEmptyEventID         = errors.New("billing: event id is required")
)

// IsClientError reports whether err was caused by untrusted input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrReturnURLNotAllowed) ||
		errors.Is(err, ErrEmptyEmail)
}
