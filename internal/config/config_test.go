package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://app.leg.wa.gov/RCW/default.aspx", cfg.Crawler.RootURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Crawler.MinDelay)
	assert.Equal(t, 2*time.Second, cfg.Crawler.MaxDelay)
	assert.Equal(t, 3, cfg.Crawler.FetchAttempts)
	assert.Equal(t, 2*time.Second, cfg.Crawler.BackoffUnit)
	assert.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, StoreSQLite, cfg.Store.Provider)
	assert.Equal(t, 5, cfg.Store.LockAttempts)
	assert.Equal(t, ArchiveNone, cfg.Archive.Provider)
	assert.Equal(t, "spider_run.log", cfg.Logging.File)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
crawler:
  root_url: https://mirror.example/RCW/default.aspx
  min_delay: 1s
  max_delay: 3s
  fetch_attempts: 4
  requests_per_second: 0.5
http:
  timeout: 30s
store:
  provider: postgres
  dsn: postgres://crawler@localhost/statutes
  lock_attempts: 7
archive:
  provider: gcs
  bucket: rcw-archive
notify:
  enabled: true
  project_id: proj
  topic: statutes
logging:
  file: /var/log/rcw/run.log
  development: true
metrics:
  addr: ":9100"
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://mirror.example/RCW/default.aspx", cfg.Crawler.RootURL)
	assert.Equal(t, time.Second, cfg.Crawler.MinDelay)
	assert.Equal(t, 4, cfg.Crawler.FetchAttempts)
	assert.InDelta(t, 0.5, cfg.Crawler.RequestsPerSecond, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, StorePostgres, cfg.Store.Provider)
	assert.Equal(t, 7, cfg.Store.LockAttempts)
	assert.Equal(t, "statutes", cfg.Store.Table)
	assert.Equal(t, ArchiveGCS, cfg.Archive.Provider)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, "/var/log/rcw/run.log", cfg.Logging.File)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STATUTE_STORE_PROVIDER", "memory")
	t.Setenv("STATUTE_CRAWLER_FETCH_ATTEMPTS", "6")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Provider)
	assert.Equal(t, 6, cfg.Crawler.FetchAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Crawler.RootURL = "" }},
		{"inverted delays", func(c *Config) { c.Crawler.MaxDelay = c.Crawler.MinDelay - time.Millisecond }},
		{"no attempts", func(c *Config) { c.Crawler.FetchAttempts = 0 }},
		{"no timeout", func(c *Config) { c.HTTP.Timeout = 0 }},
		{"no lock attempts", func(c *Config) { c.Store.LockAttempts = 0 }},
		{"postgres without dsn", func(c *Config) { c.Store.Provider = StorePostgres; c.Store.DSN = "" }},
		{"unknown store", func(c *Config) { c.Store.Provider = "mongo" }},
		{"gcs without bucket", func(c *Config) { c.Archive.Provider = ArchiveGCS }},
		{"unknown archive", func(c *Config) { c.Archive.Provider = "s3" }},
		{"notify without topic", func(c *Config) { c.Notify.Enabled = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
