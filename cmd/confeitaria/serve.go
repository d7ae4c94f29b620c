package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/confeitaria/modules/paywall"
	"github.com/dmitrymomot/confeitaria/pkg/email"
	"github.com/dmitrymomot/confeitaria/pkg/environment"
	"github.com/dmitrymomot/confeitaria/pkg/httpserver"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
	"github.com/dmitrymomot/confeitaria/svc/billing"
	"github.com/dmitrymomot/confeitaria/svc/identity"
)

func serveCmd(envFiles *[]string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the paywall HTTP API: processor webhooks, checkout, entitlement
checks and the access gate.

Examples:
  confeitaria serve
  confeitaria serve --addr :9000 --env-file .env.local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg AppConfig) error {
	log := newLogger(cfg)
	logger.SetAsDefault(log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	bc := cfg.Billing
	cache := a.customerCache()

	sender, err := email.NewSender(cfg.Email, log)
	if err != nil {
		return err
	}

	normalizerOpts := []billing.NormalizerOption{
		billing.WithCustomerCache(cache),
		billing.WithNormalizerLogger(log),
	}
	if a.processor != nil {
		normalizerOpts = append(normalizerOpts, billing.WithCustomerLookup(a.processor, bc.ProcessorTimeout))
	}

	if bc.StripeWebhookSecret == "" {
		log.WarnContext(ctx, "STRIPE_WEBHOOK_SECRET is not set, webhooks will be rejected")
	}
	webhooks := billing.NewWebhookService(
		webhook.NewVerifier(bc.StripeWebhookSecret, webhook.WithTolerance(bc.WebhookTolerance)),
		billing.NewNormalizer(normalizerOpts...),
		a.store,
		billing.WithLedger(a.ledger()),
		billing.WithNotifier(billing.NewEmailNotifier(sender, cfg.Name, cfg.URL)),
		billing.WithWebhookMetrics(a.metrics),
		billing.WithWebhookLogger(log),
		billing.WithStoreTimeout(bc.StoreTimeout),
		billing.WithRetryOnStoreFailure(bc.WebhookRetryOnStoreFailure),
	)

	checkout := billing.NewCheckoutService(a.processor, bc.StripePriceID,
		billing.WithAllowedOrigins(cfg.Paywall.AllowedOrigins...),
		billing.WithCheckoutCache(cache),
		billing.WithCheckoutBreaker(a.breaker),
		billing.WithCheckoutMetrics(a.metrics),
		billing.WithCheckoutTimeout(bc.ProcessorTimeout),
		billing.WithCheckoutLogger(log),
	)

	gate := billing.NewGate(a.store, a.query,
		billing.WithPolling(webhook.ExponentialBackoff{
			InitialInterval: bc.GatePollInitial,
			MaxInterval:     bc.GatePollMax,
			Multiplier:      2,
		}, bc.GatePollMaxWait),
		billing.WithGateStoreTimeout(bc.StoreTimeout),
		billing.WithStaleRecheck(bc.GateStaleRecheck),
		billing.WithGateMetrics(a.metrics),
		billing.WithGateLogger(log),
	)

	auth, err := identity.NewAuthenticator(cfg.Identity)
	if err != nil {
		if !errors.Is(err, identity.ErrNotConfigured) {
			return err
		}
		log.WarnContext(ctx, "IDENTITY_JWT_SECRET is not set, every caller is anonymous")
	}
	sessions := identity.NewManager(identity.WithManagerLogger(log))
	defer sessions.Close()

	watchCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	watcher := paywall.NewWatcher(sessions, a.query, bc.ProcessorTimeout, log)
	go func() {
		if err := watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorContext(ctx, "session watcher stopped", logger.Error(err))
		}
	}()

	r := chi.NewRouter()
	r.Use(environment.Middleware(cfg.Env))
	r.Mount("/", paywall.Router(paywall.Options{
		Config:      cfg.Paywall,
		Webhooks:    webhooks,
		Checkout:    checkout,
		Query:       a.query,
		Gate:        gate,
		Auth:        auth,
		Sessions:    sessions,
		ReadyChecks: a.checks,
		Metrics:     a.metricsHandler(),
		Logger:      log,
	}))

	log.InfoContext(ctx, "starting server",
		slog.String("addr", cfg.HTTP.Addr),
		slog.String("store", cfg.StoreDriver),
		slog.String("cache", cfg.CacheDriver),
	)
	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log), httpserver.WithShutdownHook(stopWatcher))
	return srv.Run(ctx, r)
}
