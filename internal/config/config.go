// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HUNTER_SERVER_PORT.
const EnvPrefix = "HUNTER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Bus      BusConfig      `mapstructure:"bus"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	StaticDir       string        `mapstructure:"static_dir"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CrawlerConfig governs the discovery loop.
type CrawlerConfig struct {
	Target             int           `mapstructure:"target"`
	RoundPause         time.Duration `mapstructure:"round_pause"`
	ItemPause          time.Duration `mapstructure:"item_pause"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	MaxBodyBytes       int           `mapstructure:"max_body_bytes"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	MinCandidateLength int           `mapstructure:"min_candidate_length"`
	SearchEndpoint     string        `mapstructure:"search_endpoint"`
	GenericQuery       string        `mapstructure:"generic_query"`
	BlockedDomains     []string      `mapstructure:"blocked_domains"`
}

// AnalyzerConfig configures the external classification service.
type AnalyzerConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxTokens         int64         `mapstructure:"max_tokens"`
	MinKeyLength      int           `mapstructure:"min_key_length"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// BusConfig sizes the observer event bus.
type BusConfig struct {
	Capacity  int           `mapstructure:"capacity"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// ProgressConfig tunes the archival hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls the optional Postgres archive.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	SourceTable     string        `mapstructure:"source_table"`
	SessionTable    string        `mapstructure:"session_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds the optional export topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// StorageConfig selects where session snapshots go. A GCS bucket wins over a
// local directory; neither disables snapshots.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from defaults, an optional file and the environment.
// With an empty path it looks for datahunter.{yaml,json,toml} in the working
// directory, /etc/datahunter and $HOME/.datahunter, and carries on without one.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("analyzer.api_key", EnvPrefix+"_ANALYZER_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind analyzer key: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("datahunter")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/datahunter/")
		v.AddConfigPath("$HOME/.datahunter")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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

// Every key gets a default, even an empty one, so AutomaticEnv can override
// it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.command_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("crawler.target", 10)
	v.SetDefault("crawler.round_pause", 2*time.Second)
	v.SetDefault("crawler.item_pause", 600*time.Millisecond)
	v.SetDefault("crawler.fetch_timeout", 12*time.Second)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.max_body_bytes", 4<<20)
	v.SetDefault("crawler.requests_per_second", 1.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.min_candidate_length", 20)
	v.SetDefault("crawler.search_endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("crawler.generic_query", "open data portal directory csv")
	v.SetDefault("crawler.blocked_domains", []string{})

	v.SetDefault("analyzer.api_key", "")
	v.SetDefault("analyzer.model", "claude-haiku-4-5")
	v.SetDefault("analyzer.base_url", "")
	v.SetDefault("analyzer.timeout", 10*time.Second)
	v.SetDefault("analyzer.max_tokens", 60)
	v.SetDefault("analyzer.min_key_length", 10)
	v.SetDefault("analyzer.requests_per_second", 2.0)
	v.SetDefault("analyzer.burst", 1)

	v.SetDefault("bus.capacity", 200)
	v.SetDefault("bus.keep_alive", 15*time.Second)

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 10*time.Second)
	v.SetDefault("progress.log_events", false)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.source_table", "hunter_sources")
	v.SetDefault("db.session_table", "hunter_sessions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.auto_migrate", true)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "snapshots")

	v.SetDefault("metrics.enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Crawler.Target < 0 {
		return fmt.Errorf("crawler.target must be >= 0")
	}
	if c.Crawler.RoundPause < 0 || c.Crawler.ItemPause < 0 {
		return fmt.Errorf("crawler pauses must be >= 0")
	}
	if c.Crawler.FetchTimeout <= 0 {
		return fmt.Errorf("crawler.fetch_timeout must be > 0")
	}
	if c.Crawler.MinCandidateLength <= 0 {
		return fmt.Errorf("crawler.min_candidate_length must be > 0")
	}
	if c.Crawler.SearchEndpoint == "" {
		return fmt.Errorf("crawler.search_endpoint is required")
	}
	if c.Analyzer.Timeout <= 0 {
		return fmt.Errorf("analyzer.timeout must be > 0")
	}
	if c.Bus.Capacity <= 0 {
		return fmt.Errorf("bus.capacity must be > 0")
	}
	if c.Bus.KeepAlive <= 0 {
		return fmt.Errorf("bus.keep_alive must be > 0")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// AllBlockedDomains returns builtin followed by the configured domains.
func (c CrawlerConfig) AllBlockedDomains(builtin []string) []string {
	out := make([]string, 0, len(builtin)+len(c.BlockedDomains))
	out = append(out, builtin...)
	for _, d := range c.BlockedDomains {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
