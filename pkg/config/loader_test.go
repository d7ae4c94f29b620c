package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/confeitaria/pkg/config"
)

type sampleConfig struct {
	Name    string        `env:"CFG_TEST_NAME" envDefault:"confeitaria"`
	Timeout time.Duration `env:"CFG_TEST_TIMEOUT" envDefault:"10s"`
	Origins []string      `env:"CFG_TEST_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
}

type requiredConfig struct {
	Secret string `env:"CFG_TEST_REQUIRED,required"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sampleConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "confeitaria", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Origins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CFG_TEST_NAME", "bakery")
	t.Setenv("CFG_TEST_TIMEOUT", "3s")
	t.Setenv("CFG_TEST_ORIGINS", "https://a.example,https://b.example")

	var cfg sampleConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "bakery", cfg.Name)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins)
}

func TestLoad_RequiredMissing(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *sampleConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFG_TEST_REQUIRED=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CFG_TEST_REQUIRED") })

	var cfg requiredConfig
	require.NoError(t, config.Load(&cfg, path))
	assert.Equal(t, "from-file", cfg.Secret)
}

func TestLoad_EnvFileMissing(t *testing.T) {
	var cfg sampleConfig
	err := config.Load(&cfg, filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, config.ErrEnvFile)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
