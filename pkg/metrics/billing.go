package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "confeitaria"

// Billing exports webhook, entitlement and gate metrics.
// A nil *Billing is valid and records nothing.
type Billing struct {
	webhooks      *prometheus.CounterVec
	entitlements  *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	processorTime *prometheus.HistogramVec
}

// NewBilling registers billing collectors on reg, or on the default
// registerer when reg is nil. Collectors already registered are reused.
func NewBilling(reg prometheus.Registerer) (*Billing, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	webhooks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Webhook deliveries by processing outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	entitlements, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "checks_total",
		Help:      "Entitlement resolutions by signal source and result.",
	}, []string{"source", "entitled"}))
	if err != nil {
		return nil, err
	}

	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Access gate decisions.",
	}, []string{"decision"}))
	if err != nil {
		return nil, err
	}

	processorTime, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "request_duration_seconds",
		Help:      "Latency of payment processor calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "result"}))
	if err != nil {
		return nil, err
	}

	return &Billing{
		webhooks:      webhooks,
		entitlements:  entitlements,
		decisions:     decisions,
		processorTime: processorTime,
	}, nil
}

// WebhookProcessed counts a webhook delivery by outcome.
func (b *Billing) WebhookProcessed(outcome string) {
	if b == nil {
		return
	}
	b.webhooks.WithLabelValues(outcome).Inc()
}

// EntitlementChecked counts an entitlement resolution.
func (b *Billing) EntitlementChecked(source string, entitled bool) {
	if b == nil {
		return
	}
	label := "false"
	if entitled {
		label = "true"
	}
	b.entitlements.WithLabelValues(source, label).Inc()
}

// GateDecided counts an access gate decision.
func (b *Billing) GateDecided(decision string) {
	if b == nil {
		return
	}
	b.decisions.WithLabelValues(decision).Inc()
}

// ProcessorCall observes the latency of one processor operation.
func (b *Billing) ProcessorCall(operation string, took time.Duration, err error) {
	if b == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.processorTime.WithLabelValues(operation, result).Observe(took.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, errors.Join(ErrRegister, err)
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, errors.Join(ErrRegister, err)
	}
	return h, nil
}
