package main

import (
	"fmt"

	"github.com/dmitrymomot/confeitaria/modules/paywall"
	"github.com/dmitrymomot/confeitaria/pkg/config"
	"github.com/dmitrymomot/confeitaria/pkg/email"
	"github.com/dmitrymomot/confeitaria/pkg/environment"
	"github.com/dmitrymomot/confeitaria/pkg/httpserver"
	"github.com/dmitrymomot/confeitaria/pkg/pg"
	"github.com/dmitrymomot/confeitaria/pkg/redis"
	"github.com/dmitrymomot/confeitaria/svc/billing"
	"github.com/dmitrymomot/confeitaria/svc/identity"
)

const (
	driverPostgres = "postgres"
	driverRedis    = "redis"
	driverMemory   = "memory"
)

// AppConfig is the complete process configuration.
type AppConfig struct {
	Env  environment.Environment `env:"APP_ENV" envDefault:"development"`
	Name string                  `env:"APP_NAME" envDefault:"Confeitaria"`
	URL  string                  `env:"APP_URL"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	CacheDriver string `env:"CACHE_DRIVER" envDefault:"memory"`

	HTTP     httpserver.Config
	Postgres pg.Config
	Redis    redis.Config
	Billing  billing.Config
	Identity identity.Config
	Email    email.Config
	Paywall  paywall.Config
}

func loadConfig(files []string) (AppConfig, error) {
	var cfg AppConfig
	if err := config.Load(&cfg, files...); err != nil {
		return AppConfig{}, err
	}
	switch cfg.StoreDriver {
	case driverPostgres, driverMemory:
	default:
		return AppConfig{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.CacheDriver {
	case driverRedis, driverMemory:
	default:
		return AppConfig{}, fmt.Errorf("unknown CACHE_DRIVER %q", cfg.CacheDriver)
	}
	return cfg, nil
}
