package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"fee over cap", func(c *Config) { c.Engine.FeeRateBps = 600 }},
		{"negative fee", func(c *Config) { c.Engine.FeeRateBps = -1 }},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Addr = "" }},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Bucket = ""
		}},
		{"rate limit without window", func(c *Config) {
			c.Server.RateLimit = 10
			c.Server.RateWindow = duration{}
		}},
		{"postgres pool min over max", func(c *Config) {
			c.Postgres.PoolMinConns = 20
			c.Postgres.PoolMaxConns = 5
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMemoryBackendSkipsPostgresChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Postgres = PostgresConfig{}
	require.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[storage]
backend = "memory"

[engine]
fee_rate_bps = 250
admins = ["0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"]

[server]
port = 9090
rate_limit = 20
rate_window = "2s"

[archive]
interval = "12h"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 250, cfg.Engine.FeeRateBps)
	assert.Len(t, cfg.Engine.Admins, 1)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, 12*time.Hour, cfg.Archive.Interval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"postgres\"\n"), 0o600))

	t.Setenv("PREDICT_STORAGE_BACKEND", "memory")
	t.Setenv("PREDICT_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("PREDICT_ENGINE_FEE_RATE_BPS", "300")
	t.Setenv("PREDICT_ENGINE_ADMINS", "0xaaa, 0xbbb")
	t.Setenv("PREDICT_SERVER_RATE_WINDOW", "5s")
	t.Setenv("PREDICT_REDIS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 300, cfg.Engine.FeeRateBps)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Engine.Admins)
	assert.Equal(t, 5*time.Second, cfg.Server.RateWindow.Duration)
	assert.False(t, cfg.Redis.Enabled)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "token"
	cfg.Engine.Admins = []string{"0xaaa"}

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "secret", cfg.Postgres.Password)

	// The redacted copy must not alias the original's slices.
	red.Engine.Admins[0] = "mutated"
	assert.Equal(t, "0xaaa", cfg.Engine.Admins[0])
}
