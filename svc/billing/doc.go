// Package billing keeps subscription state in sync with the payment processor
// and decides paid access from it.
//
// The persisted Store is the canonical entitlement source. Processor webhooks
// keep it current through WebhookService, which verifies the signature,
// normalizes the payload into an Event and applies it with a conditional
// write ordered by the event's occurrence time, so duplicated or reordered
// deliveries converge on the latest state. A Ledger of processed event ids
// short-circuits duplicates.
//
// CheckoutService opens hosted checkout sessions, QueryService asks the
// processor directly (failing closed) and Gate combines both into an access
// Decision:
//
//	store := billing.NewPostgresStore(pool)
//	query := billing.NewQueryService(processor, store)
//	gate := billing.NewGate(store, query)
//
//	v := gate.Admit(ctx, billing.AccessRequest{
//	    Authenticated: true,
//	    Email:         session.Email,
//	    SessionMarker: r.URL.Query().Get("session_id"),
//	})
//	switch v.Decision {
//	case billing.DecisionAdmit:
//	    // render the app
//	}
//
// Unknown or failed lookups never grant access.
package billing
