package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  allowed_origins: ["https://store.example"]
auth:
  enabled: true
  api_key: secret
crawler:
  user_agents: ["agent-a", "agent-b"]
  timeout_seconds: 6
  page_delay_ms: 2000
  site_delay_ms: 3000
  concurrency: 3
  job_budget_seconds: 45
extract:
  currency_rate: 0.0067
  default_brand: Acme
storage:
  backend: postgres
  dsn: postgres://crawler@localhost/catalog
archive:
  backend: local
  base_dir: /tmp/pages
pubsub:
  project_id: demo
  topic_name: crawl-jobs
logging:
  development: false
presets:
  boutique:
    selectors:
      card_selector: .tile
      title: .tile-name
    pagination:
      next_page_selector: a.more
      max_pages: 4
targets:
  - target_url: https://shop.example/new
    preset: boutique
  - target_url: https://other.example/list
    page_range:
      start: 1
      end: 3
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if len(cfg.Crawler.UserAgents) != 2 || cfg.Crawler.Concurrency != 3 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Extract.CurrencyRate != 0.0067 || cfg.Extract.DefaultBrand != "Acme" {
		t.Fatalf("expected extract overrides: %+v", cfg.Extract)
	}
	if cfg.Extract.ImageWidth != 800 {
		t.Fatalf("expected default image width, got %d", cfg.Extract.ImageWidth)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Archive.Backend != BackendLocal {
		t.Fatalf("expected backends to be selected: %+v %+v", cfg.Storage, cfg.Archive)
	}
	preset, ok := cfg.Presets["boutique"]
	if !ok || preset.Selectors.CardSelector != ".tile" || preset.Pagination == nil || preset.Pagination.MaxPages != 4 {
		t.Fatalf("expected preset to be loaded: %+v", cfg.Presets)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("expected two targets, got %+v", cfg.Targets)
	}
	if cfg.Targets[0].Preset != "boutique" || cfg.Targets[1].PageRange == nil || cfg.Targets[1].PageRange.End != 3 {
		t.Fatalf("expected targets to decode: %+v", cfg.Targets)
	}
	if got := cfg.JobBudget(); got != 45*time.Second {
		t.Fatalf("expected job budget 45s, got %v", got)
	}
	if got := cfg.PageDelay(); got != 2*time.Second {
		t.Fatalf("expected page delay 2s, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 6*time.Second {
		t.Fatalf("expected fetch timeout 6s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.Archive.Backend != BackendNone {
		t.Fatalf("unexpected default backends: %+v %+v", cfg.Storage, cfg.Archive)
	}
	if cfg.PageDelay() != 1500*time.Millisecond {
		t.Fatalf("unexpected default page delay %v", cfg.PageDelay())
	}
	if cfg.FetchTimeout() >= 10*time.Second {
		t.Fatalf("fetch timeout must stay in single-digit seconds, got %v", cfg.FetchTimeout())
	}
}

func TestZeroDelaysDisablePauses(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	if cfg.PageDelay() >= 0 || cfg.SiteDelay() >= 0 {
		t.Fatalf("zero delays should report negative (disabled), got %v %v", cfg.PageDelay(), cfg.SiteDelay())
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Concurrency: 1, TimeoutSeconds: 8, PageDelayMs: 1500},
		Storage: StorageConfig{Backend: BackendMemory},
		Archive: ArchiveConfig{Backend: BackendNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"invalid timeout", func(c *Config) { c.Crawler.TimeoutSeconds = 0 }, "crawler.timeout_seconds"},
		{"delay too short", func(c *Config) { c.Crawler.PageDelayMs = 200 }, "crawler.page_delay_ms"},
		{"delay too long", func(c *Config) { c.Crawler.PageDelayMs = 5000 }, "crawler.page_delay_ms"},
		{"negative rate", func(c *Config) { c.Extract.CurrencyRate = -1 }, "extract.currency_rate"},
		{"negative host rps", func(c *Config) { c.Crawler.HostRPS = -2 }, "crawler.host_rps"},
		{"negative max range pages", func(c *Config) { c.Crawler.MaxRangePages = -1 }, "crawler.max_range_pages"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.dsn"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"local archive without dir", func(c *Config) { c.Archive.Backend = BackendLocal }, "archive.base_dir"},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Backend = BackendGCS }, "archive.gcs_bucket"},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "t" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
