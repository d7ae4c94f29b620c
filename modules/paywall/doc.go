// Package paywall exposes the subscription gate over HTTP: processor
// webhooks, checkout creation, entitlement checks and the access decision
// for the single-page app.
//
//	r := chi.NewRouter()
//	r.Mount("/", paywall.Router(paywall.Options{
//		Config:   cfg,
//		Webhooks: webhookSvc,
//		Checkout: checkoutSvc,
//		Query:    querySvc,
//		Gate:     gate,
//		Auth:     authenticator,
//		Sessions: sessions,
//		Logger:   log,
//	}))
//
// Routes:
//
//	POST /webhook             processor events, Stripe-Signature header
//	POST /create-checkout     {email, returnUrl} -> {sessionId, url}
//	POST /check-subscription  {email} -> {hasActiveSubscription}
//	GET  /access              bearer token, optional ?session_id -> {decision, location}
//	POST /logout              bearer token -> 204
//	GET  /config              client-visible configuration
//	GET  /healthz, /readyz    liveness and readiness
//	GET  /metrics             Prometheus metrics, when a handler is given
package paywall
