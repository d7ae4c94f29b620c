package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Load parses environment variables into v based on its env struct tags.
//
// Before parsing, dotenv files are loaded into the process environment without
// overriding variables that are already set. With no files given, ./.env is
// loaded once per process when it exists; explicitly named files must exist.
//
//	type BillingConfig struct {
//		SecretKey string        `env:"STRIPE_SECRET_KEY"`
//		Timeout   time.Duration `env:"PROCESSOR_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg BillingConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, files ...string) error {
	if v == nil {
		return ErrNilPointer
	}

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return errors.Join(ErrEnvFile, err)
		}
	} else {
		defaultEnvLoaded.Do(func() {
			if _, err := os.Stat(".env"); err == nil {
				_ = godotenv.Load()
			}
		})
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T, files ...string) {
	if err := Load(v, files...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
