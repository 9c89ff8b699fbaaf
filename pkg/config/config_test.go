package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/farm-checkout/pkg/config"
)

var envKeys = []string{
	"CONFIG_FILE", "APP_PORT", "APP_ENV", "LOG_LEVEL",
	"MARKETPLACE_BASE_URL", "MARKETPLACE_TIMEOUT", "MARKETPLACE_ENDPOINT_SUFFIX",
	"SESSION_TTL", "CATALOG_TTL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "MIGRATIONS_PATH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARKETPLACE_BASE_URL", "http://market.local/api")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "http://market.local/api", cfg.Marketplace.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Marketplace.Timeout)
	assert.Equal(t, ".php", cfg.Marketplace.EndpointSuffix)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.SessionTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Postgres.Enabled())
}

func TestLoad_RequiresBaseURL(t *testing.T) {
	clearEnv(t)

	_, err := config.Load("")
	assert.ErrorIs(t, err, config.ErrMissingBaseURL)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.yaml")
	yamlBody := `
app:
  port: "9090"
  env: production
marketplace:
  base_url: http://yaml.local/api
  timeout: 3s
checkout:
  session_ttl: 15m
redis:
  addr: localhost:6379
postgres:
  host: db.local
  dbname: farm
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CATALOG_TTL", "90s")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.App.Port)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "http://yaml.local/api", cfg.Marketplace.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Marketplace.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Checkout.SessionTTL)
	assert.Equal(t, 90*time.Second, cfg.Checkout.CatalogTTL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.Postgres.Enabled())
	assert.Equal(t, "farm", cfg.Postgres.DBName)
	assert.Equal(t, "5432", cfg.Postgres.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that exist, even empty ones.
	os.Unsetenv("MARKETPLACE_BASE_URL")
	os.Unsetenv("LOG_LEVEL")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MARKETPLACE_BASE_URL=http://env.local\nLOG_LEVEL=debug\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.local", cfg.Marketplace.BaseURL)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARKETPLACE_BASE_URL", "http://market.local")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"MARKETPLACE_TIMEOUT", "soon"},
		{"SESSION_TTL", "30"},
		{"REDIS_DB", "zero"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MARKETPLACE_BASE_URL", "http://market.local")
			t.Setenv(tt.key, tt.value)

			_, err := config.Load("")
			assert.Error(t, err)
		})
	}
}
