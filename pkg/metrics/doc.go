// Package metrics defines the Prometheus collectors of the billing flow and
// the HTTP handler that exposes them.
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.NewBilling(reg)
//	...
//	m.WebhookProcessed("applied")
//	router.Handle("/metrics", metrics.Handler(reg))
package metrics
