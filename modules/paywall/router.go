package paywall

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/confeitaria/handler"
	"github.com/dmitrymomot/confeitaria/pkg/binder"
	"github.com/dmitrymomot/confeitaria/pkg/clientip"
	"github.com/dmitrymomot/confeitaria/pkg/httpserver"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/ratelimit"
	"github.com/dmitrymomot/confeitaria/pkg/requestid"
	"github.com/dmitrymomot/confeitaria/svc/billing"
	"github.com/dmitrymomot/confeitaria/svc/identity"
)

// Options wires the services behind the paywall routes. Webhooks, Checkout,
// Query and Gate are required; the rest are optional.
type Options struct {
	Config   Config
	Webhooks *billing.WebhookService
	Checkout *billing.CheckoutService
	Query    *billing.QueryService
	Gate     *billing.Gate

	// Auth validates bearer tokens. Without it every caller is anonymous.
	Auth     *identity.Authenticator
	Sessions *identity.Manager

	// ReadyChecks back /readyz.
	ReadyChecks []httpserver.Check
	// Metrics is served on /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Router creates the paywall router.
func Router(opts Options) chi.Router {
	if opts.Webhooks == nil || opts.Checkout == nil || opts.Query == nil || opts.Gate == nil {
		panic("paywall: webhooks, checkout, query and gate services are required")
	}
	log := logger.OrDiscard(opts.Logger).With(logger.Component("paywall"))
	h := &handlers{
		cfg:      opts.Config,
		webhooks: opts.Webhooks,
		checkout: opts.Checkout,
		query:    opts.Query,
		gate:     opts.Gate,
		sessions: opts.Sessions,
		log:      log,
	}
	onError := errorHandler(log)

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		clientip.Middleware(opts.Config.TrustedProxyHeaders),
		middleware.Recoverer,
		cors(opts.Config.AllowedOrigins),
	)

	r.Get("/healthz", httpserver.HealthCheckHandler(log, 0))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, 2*time.Second, opts.ReadyChecks...))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Post("/webhook", handlerWrap[webhookRequest](h.webhook, onError, bindWebhook))
	r.Get("/config", handlerWrap[struct{}](h.clientConfig, onError))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(opts.Auth, opts.Sessions, log))

		r.With(limiter(opts.Config, onError)...).Post("/create-checkout", handlerWrap[checkoutRequest](h.createCheckout, onError, binder.JSON()))
		r.With(limiter(opts.Config, onError)...).Post("/check-subscription", handlerWrap[checkSubscriptionRequest](h.checkSubscription, onError, binder.JSON()))
		r.Get("/access", handlerWrap[accessRequest](h.access, onError))
		r.Post("/logout", handlerWrap[struct{}](h.logout, onError))
	})

	return r
}

// limiter returns the per-IP rate limit middleware, or nothing when disabled.
// Each call creates an independent bucket set.
func limiter(cfg Config, onError handler.ErrorHandler) []func(http.Handler) http.Handler {
	if cfg.RateLimit <= 0 {
		return nil
	}
	tb, err := ratelimit.NewTokenBucket(cfg.RateLimit, time.Minute, ratelimit.WithBurst(cfg.RateBurst))
	if err != nil {
		panic("paywall: " + err.Error())
	}
	byIP := func(r *http.Request) string { return clientip.FromContext(r.Context()) }
	reject := func(w http.ResponseWriter, r *http.Request) {
		onError(handler.NewContext(w, r), handler.ErrTooManyRequests)
	}
	return []func(http.Handler) http.Handler{ratelimit.Middleware(tb, byIP, reject)}
}
