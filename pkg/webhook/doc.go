// Package webhook authenticates inbound payment-processor webhooks and provides
// the small resilience helpers used around processor calls.
//
// # Signatures
//
// Senders sign the exact request body with HMAC-SHA256 over "<t>.<body>" and
// put the result in a header of the form:
//
//	Stripe-Signature: t=1700000000,v1=5257a869e7...,v1=...
//
// Multiple v1 candidates are allowed (secret rotation); verification succeeds if
// any of them matches. Comparison is constant-time. Unknown keys are ignored.
//
//	v := webhook.NewVerifier(secret, webhook.WithTolerance(5*time.Minute))
//	if err := v.Verify(body, r.Header.Get(webhook.SignatureHeaderName)); err != nil {
//	    if errors.Is(err, webhook.ErrMissingSecret) {
//	        // server misconfiguration
//	    }
//	    // reject the request
//	}
//
// Sign produces headers in the same format, which is handy in tests and local
// tooling.
//
// # Resilience
//
// CircuitBreaker stops calling an upstream after consecutive failures.
// BackoffStrategy implementations (ExponentialBackoff, FixedBackoff) compute the
// delay between polling or retry attempts.
//
// # Error Handling
//
// All verification errors wrap a sentinel from errors.go. IsSignatureError
// separates "bad request" failures from ErrMissingSecret.
package webhook
