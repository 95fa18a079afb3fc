// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store providers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Archive providers.
const (
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
	ArchiveMemory = "memory"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CrawlerConfig governs traversal and politeness.
type CrawlerConfig struct {
	RootURL           string        `mapstructure:"root_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	FetchAttempts     int           `mapstructure:"fetch_attempts"`
	BackoffUnit       time.Duration `mapstructure:"backoff_unit"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects and tunes the statute store.
type StoreConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	Table           string        `mapstructure:"table"`
	CheckpointTable string        `mapstructure:"checkpoint_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	LockAttempts    int           `mapstructure:"lock_attempts"`
	LockBackoff     time.Duration `mapstructure:"lock_backoff"`
}

// ArchiveConfig controls where raw statute pages are kept.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// NotifyConfig holds Pub/Sub settings for "statute stored" events.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig controls the run log.
type LoggingConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STATUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.root_url", "https://app.leg.wa.gov/RCW/default.aspx")
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.min_delay", "500ms")
	v.SetDefault("crawler.max_delay", "2s")
	v.SetDefault("crawler.fetch_attempts", 3)
	v.SetDefault("crawler.backoff_unit", "2s")
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("store.provider", StoreSQLite)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "wa_caselaw.db")
	v.SetDefault("store.table", "statutes")
	v.SetDefault("store.checkpoint_table", "crawl_checkpoints")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.busy_timeout", "30s")
	v.SetDefault("store.lock_attempts", 5)
	v.SetDefault("store.lock_backoff", "2s")
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.base_dir", "data/statutes")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "rcw")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("logging.file", "spider_run.log")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 10)
	v.SetDefault("logging.compress", true)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Crawler.RootURL) == "" {
		return errors.New("crawler.root_url is required")
	}
	if c.Crawler.MinDelay < 0 || c.Crawler.MaxDelay < c.Crawler.MinDelay {
		return fmt.Errorf("crawler delay range [%s, %s] is invalid", c.Crawler.MinDelay, c.Crawler.MaxDelay)
	}
	if c.Crawler.FetchAttempts <= 0 {
		return errors.New("crawler.fetch_attempts must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return errors.New("crawler.requests_per_second must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be > 0")
	}
	if c.Store.LockAttempts <= 0 {
		return errors.New("store.lock_attempts must be > 0")
	}
	switch c.Store.Provider {
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres store")
		}
	case StoreSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return errors.New("archive.base_dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return errors.New("notify.project_id and notify.topic are required when notify is enabled")
	}
	return nil
}
