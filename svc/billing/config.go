package billing

import "time"

// Config holds processor credentials and the timing knobs of the billing flow.
type Config struct {
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string `env:"STRIPE_PRICE_ID"`
	// StripeAPIURL overrides the API base URL, e.g. for stripe-mock.
	StripeAPIURL string `env:"STRIPE_API_URL"`

	WebhookTolerance           time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
	WebhookRetryOnStoreFailure bool          `env:"WEBHOOK_RETRY_ON_STORE_FAILURE" envDefault:"false"`
	LedgerTTL                  time.Duration `env:"LEDGER_TTL" envDefault:"72h"`

	ProcessorTimeout time.Duration `env:"PROCESSOR_TIMEOUT" envDefault:"10s"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	BreakerFailureThreshold int           `env:"PROCESSOR_BREAKER_FAILURES" envDefault:"5"`
	BreakerSuccessThreshold int           `env:"PROCESSOR_BREAKER_SUCCESSES" envDefault:"1"`
	BreakerRecoveryTimeout  time.Duration `env:"PROCESSOR_BREAKER_RECOVERY" envDefault:"30s"`

	GatePollInitial  time.Duration `env:"GATE_POLL_INITIAL" envDefault:"1s"`
	GatePollMax      time.Duration `env:"GATE_POLL_MAX_INTERVAL" envDefault:"4s"`
	GatePollMaxWait  time.Duration `env:"GATE_POLL_MAX_WAIT" envDefault:"10s"`
	// GateStaleRecheck confirms older store records live; 0 disables.
	GateStaleRecheck time.Duration `env:"GATE_STALE_RECHECK" envDefault:"1h"`

	ReconcileBatch   int           `env:"RECONCILE_BATCH_SIZE" envDefault:"100"`
	ReconcileTimeout time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"10m"`
	// ReconcileMargin back-dates reconciled writes so processor events
	// created around a live check still apply over them.
	ReconcileMargin time.Duration `env:"RECONCILE_MARGIN" envDefault:"1m"`
}

// ProcessorConfigured reports whether the processor API key is set.
func (c Config) ProcessorConfigured() bool { return c.StripeSecretKey != "" }
