package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.Target != 10 {
		t.Fatalf("expected default target 10, got %d", cfg.Crawler.Target)
	}
	if cfg.Crawler.RoundPause != 2*time.Second || cfg.Crawler.ItemPause != 600*time.Millisecond {
		t.Fatalf("unexpected pauses: %v %v", cfg.Crawler.RoundPause, cfg.Crawler.ItemPause)
	}
	if cfg.Crawler.FetchTimeout != 12*time.Second {
		t.Fatalf("expected fetch timeout 12s, got %v", cfg.Crawler.FetchTimeout)
	}
	if cfg.Crawler.MinCandidateLength != 20 {
		t.Fatalf("expected min candidate length 20, got %d", cfg.Crawler.MinCandidateLength)
	}
	if cfg.Bus.Capacity != 200 || cfg.Bus.KeepAlive != 15*time.Second {
		t.Fatalf("unexpected bus config: %+v", cfg.Bus)
	}
	if cfg.Analyzer.MinKeyLength != 10 || cfg.Analyzer.MaxTokens != 60 {
		t.Fatalf("unexpected analyzer config: %+v", cfg.Analyzer)
	}
	if cfg.DB.SourceTable != "hunter_sources" || cfg.DB.SessionTable != "hunter_sessions" {
		t.Fatalf("unexpected table defaults: %+v", cfg.DB)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("expected metrics enabled by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  command_timeout: 3s
crawler:
  target: 25
  round_pause: 500ms
  item_pause: 0s
  user_agent: real-agent
  blocked_domains: ["spam.example", "ads.example"]
analyzer:
  model: claude-sonnet-4-5
  timeout: 4s
bus:
  capacity: 50
storage:
  local_dir: /tmp/snapshots
  prefix: runs
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.CommandTimeout != 3*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Crawler.Target != 25 || cfg.Crawler.RoundPause != 500*time.Millisecond || cfg.Crawler.ItemPause != 0 {
		t.Fatalf("expected crawler overrides, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.UserAgent != "real-agent" {
		t.Fatalf("expected user agent override, got %q", cfg.Crawler.UserAgent)
	}
	if len(cfg.Crawler.BlockedDomains) != 2 || cfg.Crawler.BlockedDomains[1] != "ads.example" {
		t.Fatalf("expected blocked domains, got %v", cfg.Crawler.BlockedDomains)
	}
	if cfg.Analyzer.Model != "claude-sonnet-4-5" || cfg.Analyzer.Timeout != 4*time.Second {
		t.Fatalf("expected analyzer overrides, got %+v", cfg.Analyzer)
	}
	if cfg.Bus.Capacity != 50 {
		t.Fatalf("expected bus capacity 50, got %d", cfg.Bus.Capacity)
	}
	if cfg.Storage.LocalDir != "/tmp/snapshots" || cfg.Storage.Prefix != "runs" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	// Untouched keys keep their defaults.
	if cfg.Crawler.FetchTimeout != 12*time.Second {
		t.Fatalf("expected default fetch timeout, got %v", cfg.Crawler.FetchTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HUNTER_SERVER_PORT", "4100")
	t.Setenv("HUNTER_CRAWLER_TARGET", "3")
	t.Setenv("HUNTER_DB_DSN", "postgres://localhost/hunter")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key-123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Fatalf("expected env port 4100, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.Target != 3 {
		t.Fatalf("expected env target 3, got %d", cfg.Crawler.Target)
	}
	if cfg.DB.DSN != "postgres://localhost/hunter" {
		t.Fatalf("expected env dsn, got %q", cfg.DB.DSN)
	}
	if cfg.Analyzer.APIKey != "sk-ant-test-key-123" {
		t.Fatalf("expected ANTHROPIC_API_KEY to populate analyzer.api_key, got %q", cfg.Analyzer.APIKey)
	}
}

func TestLoadPrefixedKeyWinsOverAnthropicKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "generic-key-value")
	t.Setenv("HUNTER_ANALYZER_API_KEY", "prefixed-key-value")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Analyzer.APIKey != "prefixed-key-value" {
		t.Fatalf("expected prefixed key, got %q", cfg.Analyzer.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{
			Target:             10,
			FetchTimeout:       time.Second,
			MinCandidateLength: 20,
			SearchEndpoint:     "https://search.example/html/",
		},
		Analyzer: AnalyzerConfig{Timeout: time.Second},
		Bus:      BusConfig{Capacity: 10, KeepAlive: time.Second},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{name: "invalid port", mod: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "negative target", mod: func(c *Config) { c.Crawler.Target = -1 }, want: "crawler.target"},
		{name: "negative pause", mod: func(c *Config) { c.Crawler.ItemPause = -time.Second }, want: "pauses"},
		{name: "zero fetch timeout", mod: func(c *Config) { c.Crawler.FetchTimeout = 0 }, want: "crawler.fetch_timeout"},
		{name: "zero candidate length", mod: func(c *Config) { c.Crawler.MinCandidateLength = 0 }, want: "crawler.min_candidate_length"},
		{name: "missing search endpoint", mod: func(c *Config) { c.Crawler.SearchEndpoint = "" }, want: "crawler.search_endpoint"},
		{name: "zero analyzer timeout", mod: func(c *Config) { c.Analyzer.Timeout = 0 }, want: "analyzer.timeout"},
		{name: "zero bus capacity", mod: func(c *Config) { c.Bus.Capacity = 0 }, want: "bus.capacity"},
		{name: "zero keep alive", mod: func(c *Config) { c.Bus.KeepAlive = 0 }, want: "bus.keep_alive"},
		{name: "topic without project", mod: func(c *Config) { c.PubSub.Topic = "sources" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mod(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestAllBlockedDomains(t *testing.T) {
	t.Parallel()

	c := CrawlerConfig{BlockedDomains: []string{" spam.example ", ""}}
	got := c.AllBlockedDomains([]string{"google"})
	if len(got) != 2 || got[0] != "google" || got[1] != "spam.example" {
		t.Fatalf("unexpected domains: %v", got)
	}
}
