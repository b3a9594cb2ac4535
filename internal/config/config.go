// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig gates mutating admin endpoints behind an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs scheduler and dispatcher behavior.
type CrawlerConfig struct {
	Concurrency            int      `mapstructure:"concurrency"`
	SerialHosts            []string `mapstructure:"serial_hosts"`
	ParticipantMinFetchSec int      `mapstructure:"participant_min_fetch_seconds"`
	Adaptive               bool     `mapstructure:"adaptive"`
	BackoffCap             int      `mapstructure:"backoff_cap"`
	PerHostRPS             float64  `mapstructure:"per_host_rps"`
	PerHostBurst           int      `mapstructure:"per_host_burst"`
	UserAgent              string   `mapstructure:"user_agent"`
}

// HTTPConfig configures the plain HTTP fetch path and its cache.
type HTTPConfig struct {
	TimeoutSeconds     int  `mapstructure:"timeout_seconds"`
	CacheTTLSeconds    int  `mapstructure:"cache_ttl_seconds"`
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// HeadlessConfig configures the browser rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	MaxParallel   int      `mapstructure:"max_parallel"`
	NavTimeoutSec int      `mapstructure:"nav_timeout_seconds"`
	RenderHosts   []string `mapstructure:"render_hosts"`
}

// AssetsConfig sizes the certificate download pool.
type AssetsConfig struct {
	Workers            int `mapstructure:"workers"`
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_seconds"`
}

// StorageConfig selects where downloaded certificates land.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	CertDir   string `mapstructure:"cert_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for post-save notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
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
	v.SetEnvPrefix("SPLITFEED")
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
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.serial_hosts", []string{"myresult.co.kr"})
	v.SetDefault("crawler.participant_min_fetch_seconds", 30)
	v.SetDefault("crawler.adaptive", false)
	v.SetDefault("crawler.backoff_cap", 30)
	v.SetDefault("crawler.per_host_rps", 2)
	v.SetDefault("crawler.per_host_burst", 1)
	v.SetDefault("crawler.user_agent", "splitfeed-bot/0.1")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.cache_ttl_seconds", 30)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 10)
	v.SetDefault("headless.render_hosts", []string{"myresult.co.kr", "spct.co.kr"})
	v.SetDefault("assets.workers", 3)
	v.SetDefault("assets.shutdown_timeout_seconds", 5)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.cert_dir", "static/certs")
	v.SetDefault("storage.prefix", "certs")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.ParticipantMinFetchSec < 0 {
		return fmt.Errorf("crawler.participant_min_fetch_seconds must be >= 0")
	}
	if c.Crawler.BackoffCap < 1 {
		return fmt.Errorf("crawler.backoff_cap must be >= 1")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.CacheTTLSeconds < 0 {
		return fmt.Errorf("http.cache_ttl_seconds must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Assets.Workers <= 0 {
		return fmt.Errorf("assets.workers must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "gcs", "memory":
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// HTTPTimeout converts the HTTP timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CacheTTL converts the fetch cache TTL into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.HTTP.CacheTTLSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// MinFetchInterval converts the per-participant fetch window into a duration.
func (c Config) MinFetchInterval() time.Duration {
	return time.Duration(c.Crawler.ParticipantMinFetchSec) * time.Second
}

// AssetJoinTimeout converts the pool shutdown deadline into a duration.
func (c Config) AssetJoinTimeout() time.Duration {
	return time.Duration(c.Assets.ShutdownTimeoutSec) * time.Second
}
