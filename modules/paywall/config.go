package paywall

import "github.com/dmitrymomot/confeitaria/svc/billing"

// Config holds the client-facing settings of the paywall endpoints.
type Config struct {
	// AllowedOrigins lists the app origins allowed to call the API and to be
	// used as checkout return URLs. Empty allows any origin for CORS.
	AllowedOrigins []string `env:"APP_ALLOWED_ORIGINS" envSeparator:","`
	PublishableKey string   `env:"PUBLISHABLE_KEY"`
	FunctionsURL   string   `env:"FUNCTIONS_URL"`

	// RequireSession makes checkout and subscription checks accept only the
	// caller's own email.
	RequireSession bool `env:"PAYWALL_REQUIRE_SESSION" envDefault:"false"`

	// RateLimit caps checkout and subscription checks per client IP per
	// minute. Zero disables limiting.
	RateLimit int `env:"PAYWALL_RATE_LIMIT" envDefault:"30"`
	RateBurst int `env:"PAYWALL_RATE_BURST" envDefault:"10"`
	// TrustedProxyHeaders are consulted for the client IP, in order. Single-hop
	// headers set by the edge proxy are preferred over X-Forwarded-For.
	TrustedProxyHeaders []string `env:"TRUSTED_PROXY_HEADERS" envSeparator:","`

	AppPath     string `env:"PAYWALL_APP_PATH" envDefault:"/"`
	LoginPath   string `env:"PAYWALL_LOGIN_PATH" envDefault:"/login"`
	PaywallPath string `env:"PAYWALL_SUBSCRIBE_PATH" envDefault:"/subscribe"`
}

// location is where the client should navigate for decision d. Pending has none.
func (c Config) location(d billing.Decision) string {
	switch d {
	case billing.DecisionAdmit:
		return c.AppPath
	case billing.DecisionRedirectToLogin:
		return c.LoginPath
	case billing.DecisionRedirectToPaywall:
		return c.PaywallPath
	}
	return ""
}
