package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/confeitaria/pkg/clientip"
	"github.com/dmitrymomot/confeitaria/pkg/httpserver"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/metrics"
	"github.com/dmitrymomot/confeitaria/pkg/pg"
	"github.com/dmitrymomot/confeitaria/pkg/redis"
	"github.com/dmitrymomot/confeitaria/pkg/requestid"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
	"github.com/dmitrymomot/confeitaria/svc/billing"
)

// app holds the infrastructure shared by every command.
type app struct {
	cfg AppConfig
	log *slog.Logger

	store  billing.Store
	kv     billing.KV
	checks []httpserver.Check

	registry *prometheus.Registry
	metrics  *metrics.Billing

	processor billing.Processor
	breaker   *webhook.CircuitBreaker
	query     *billing.QueryService

	closers []func()
}

func newLogger(cfg AppConfig) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Env, "confeitaria"),
		logger.WithContextExtractors(requestid.LogExtractor(), clientip.LogExtractor()),
	)
}

func newApp(ctx context.Context, cfg AppConfig, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	if a.metrics, err = metrics.NewBilling(a.registry); err != nil {
		return nil, err
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.breaker = webhook.NewCircuitBreaker(
		cfg.Billing.BreakerFailureThreshold,
		cfg.Billing.BreakerSuccessThreshold,
		cfg.Billing.BreakerRecoveryTimeout,
		webhook.WithCircuitObserver(func(from, to webhook.CircuitState) {
			log.Warn("processor circuit changed state",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
				logger.Component("billing"))
		}),
	)

	if cfg.Billing.ProcessorConfigured() {
		var opts []billing.StripeOption
		if cfg.Billing.StripeAPIURL != "" {
			opts = append(opts, billing.WithStripeBackend(cfg.Billing.StripeAPIURL))
		}
		p, err := billing.NewStripeProcessor(cfg.Billing.StripeSecretKey, opts...)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.processor = p
	} else {
		log.WarnContext(ctx, "STRIPE_SECRET_KEY is not set, checkout and live checks are disabled")
	}

	a.query = billing.NewQueryService(a.processor, a.store,
		billing.WithQueryBreaker(a.breaker),
		billing.WithQueryTimeout(cfg.Billing.ProcessorTimeout),
		billing.WithQueryStoreTimeout(cfg.Billing.StoreTimeout),
		billing.WithReconcileMargin(cfg.Billing.ReconcileMargin),
		billing.WithQueryMetrics(a.metrics),
		billing.WithQueryLogger(log),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.StoreDriver == driverMemory {
		a.log.WarnContext(ctx, "using in-memory subscription store, state is lost on restart")
		a.store = billing.NewMemoryStore()
		return nil
	}

	pool, err := pg.Connect(ctx, a.cfg.Postgres)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	if err := pg.Migrate(ctx, pool, a.cfg.Postgres, billing.Migrations, billing.MigrationsDir, pg.MigrateUp, a.log); err != nil {
		return err
	}
	a.store = billing.NewPostgresStore(pool)
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	return nil
}

func (a *app) openCache(ctx context.Context) error {
	if a.cfg.CacheDriver != driverRedis {
		return nil
	}
	client, err := redis.Connect(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.log.Error("failed to close redis client", logger.Error(err))
		}
	})
	a.kv = redis.NewStorage(client, a.cfg.Redis.KeyPrefix)
	a.checks = append(a.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	return nil
}

func (a *app) customerCache() billing.CustomerCache {
	if a.kv != nil {
		return billing.NewKVCustomerCache(a.kv, 30*24*time.Hour)
	}
	return billing.NewMemoryCustomerCache()
}

func (a *app) ledger() billing.Ledger {
	if a.kv != nil {
		return billing.NewKVLedger(a.kv, a.cfg.Billing.LedgerTTL)
	}
	return billing.NewMemoryLedger(a.cfg.Billing.LedgerTTL)
}

func (a *app) metricsHandler() http.Handler {
	return metrics.Handler(a.registry)
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
