// Package config loads and validates catalog crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Storage and archive backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig                        `mapstructure:"server"`
	Auth    AuthConfig                          `mapstructure:"auth"`
	Crawler CrawlerConfig                       `mapstructure:"crawler"`
	Extract ExtractConfig                       `mapstructure:"extract"`
	Storage StorageConfig                       `mapstructure:"storage"`
	Archive ArchiveConfig                       `mapstructure:"archive"`
	PubSub  PubSubConfig                        `mapstructure:"pubsub"`
	Logging LoggingConfig                       `mapstructure:"logging"`
	Presets map[string]crawler.ExtractionConfig `mapstructure:"presets"`
	Targets []crawler.Request                   `mapstructure:"targets"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int      `mapstructure:"port"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs fetching, pagination and the worker pool.
type CrawlerConfig struct {
	UserAgents       []string `mapstructure:"user_agents"`
	AcceptLanguage   string   `mapstructure:"accept_language"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	PageDelayMs      int      `mapstructure:"page_delay_ms"`
	SiteDelayMs      int      `mapstructure:"site_delay_ms"`
	MaxPagesDefault  int      `mapstructure:"max_pages_default"`
	MaxRangePages    int      `mapstructure:"max_range_pages"`
	Concurrency      int      `mapstructure:"concurrency"`
	QueueDepth       int      `mapstructure:"queue_depth"`
	DedupeSize       int      `mapstructure:"dedupe_size"`
	JobBudgetSeconds int      `mapstructure:"job_budget_seconds"`
	HostRPS          float64  `mapstructure:"host_rps"`
	HostBurst        int      `mapstructure:"host_burst"`
}

// ExtractConfig tunes record normalization.
type ExtractConfig struct {
	CurrencyRate float64 `mapstructure:"currency_rate"`
	DefaultBrand string  `mapstructure:"default_brand"`
	ImageWidth   int     `mapstructure:"image_width"`
}

// StorageConfig selects the product and job repository.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// ArchiveConfig selects where fetched pages are archived.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("crawler.accept_language", "en-US,en;q=0.9,ja;q=0.8")
	v.SetDefault("crawler.timeout_seconds", 8)
	v.SetDefault("crawler.page_delay_ms", 1500)
	v.SetDefault("crawler.site_delay_ms", 2000)
	v.SetDefault("crawler.max_pages_default", 5)
	v.SetDefault("crawler.max_range_pages", 100)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.dedupe_size", 4096)
	v.SetDefault("crawler.job_budget_seconds", 540)
	v.SetDefault("crawler.host_rps", 0)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("extract.currency_rate", 0)
	v.SetDefault("extract.image_width", 800)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.migrate", true)
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if d := c.Crawler.PageDelayMs; d != 0 && (d < 1000 || d > 3000) {
		return fmt.Errorf("crawler.page_delay_ms must be 0 or between 1000 and 3000, got %d", d)
	}
	if c.Crawler.SiteDelayMs < 0 {
		return fmt.Errorf("crawler.site_delay_ms must be >= 0")
	}
	if c.Crawler.JobBudgetSeconds < 0 {
		return fmt.Errorf("crawler.job_budget_seconds must be >= 0")
	}
	if c.Crawler.MaxRangePages < 0 {
		return fmt.Errorf("crawler.max_range_pages must be >= 0")
	}
	if c.Crawler.HostRPS < 0 {
		return fmt.Errorf("crawler.host_rps must be >= 0")
	}
	if c.Extract.CurrencyRate < 0 {
		return fmt.Errorf("extract.currency_rate must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	return nil
}

// FetchTimeout is the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// PageDelay is the pause between pages of one walk. A configured zero
// disables it and is reported as a negative duration.
func (c Config) PageDelay() time.Duration {
	if c.Crawler.PageDelayMs == 0 {
		return -1
	}
	return time.Duration(c.Crawler.PageDelayMs) * time.Millisecond
}

// SiteDelay is the pause between targets of a multi-site run, negative when
// disabled.
func (c Config) SiteDelay() time.Duration {
	if c.Crawler.SiteDelayMs == 0 {
		return -1
	}
	return time.Duration(c.Crawler.SiteDelayMs) * time.Millisecond
}

// JobBudget bounds a single crawl execution. Zero means unbounded.
func (c Config) JobBudget() time.Duration {
	return time.Duration(c.Crawler.JobBudgetSeconds) * time.Second
}

// RequestTimeout bounds synchronous API requests.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
