// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Output    OutputConfig    `mapstructure:"output"`
	Visited   VisitedConfig   `mapstructure:"visited"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig points at the SRU endpoint for the ruling repository.
type SourceConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	FrontendURL string `mapstructure:"frontend_url"`
	Query       string `mapstructure:"query"`
	PageSize    int    `mapstructure:"page_size"`
	UserAgent   string `mapstructure:"user_agent"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ThrottleConfig spaces consecutive remote requests.
type ThrottleConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// OutputConfig sets where shards are written and how large they grow.
type OutputConfig struct {
	Dir             string `mapstructure:"dir"`
	RecordsPerShard int    `mapstructure:"records_per_shard"`
}

// VisitedConfig controls the visited log.
type VisitedConfig struct {
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batch_size"`
}

// WatermarkConfig controls the last-run timestamp file.
type WatermarkConfig struct {
	Path string `mapstructure:"path"`
}

// HarvestConfig governs per-run pipeline behavior.
type HarvestConfig struct {
	MaxRecords int  `mapstructure:"max_records"`
	MinLength  int  `mapstructure:"min_length"`
	Scrub      bool `mapstructure:"scrub"`
}

// PublishConfig identifies the remote dataset repository. The token should
// come from the environment (HARVESTER_PUBLISH_TOKEN), never from a file
// checked into version control.
type PublishConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Repo       string `mapstructure:"repo"`
	Token      string `mapstructure:"token"`
	Private    bool   `mapstructure:"private"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// MetricsConfig optionally exposes the Prometheus counters over HTTP.
type MetricsConfig struct {
	// ListenAddr serves /metrics when non-empty, e.g. "127.0.0.1:9464".
	// Empty disables the listener.
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("source.base_url", "https://repository.overheid.nl/sru")
	v.SetDefault("source.frontend_url", "https://tuchtrecht.overheid.nl")
	v.SetDefault("source.query", "c.product-area==tuchtrecht")
	v.SetDefault("source.page_size", 50)
	v.SetDefault("source.user_agent", "tuchtrecht-harvester/1.0")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("throttle.requests_per_second", 2.0)
	v.SetDefault("throttle.burst", 1)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.records_per_shard", 350)
	v.SetDefault("visited.path", "visited.txt")
	v.SetDefault("visited.batch_size", 50)
	v.SetDefault("watermark.path", ".last_update")
	v.SetDefault("harvest.max_records", 500)
	v.SetDefault("harvest.min_length", 200)
	v.SetDefault("harvest.scrub", true)
	v.SetDefault("publish.endpoint", "https://huggingface.co")
	v.SetDefault("publish.path_prefix", "data")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Output.RecordsPerShard <= 0 {
		return fmt.Errorf("output.records_per_shard must be > 0")
	}
	if c.Visited.BatchSize <= 0 {
		return fmt.Errorf("visited.batch_size must be > 0")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the configured initial backoff into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the configured backoff ceiling into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
