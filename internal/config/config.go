// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Storage StorageConfig `mapstructure:"storage"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// IngestConfig governs the ingestion pipeline.
type IngestConfig struct {
	InboxDir            string `mapstructure:"inbox_dir"`
	BatchSize           int    `mapstructure:"batch_size"`
	FileTimeoutSeconds  int    `mapstructure:"file_timeout_seconds"`
	InterBatchPauseMs   int    `mapstructure:"inter_batch_pause_ms"`
	SweepIntervalMinute int    `mapstructure:"sweep_interval_minutes"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig configures the optional archive mirror bucket.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// WatchConfig toggles the inbox watcher.
type WatchConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	DebounceMs int  `mapstructure:"debounce_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEINGEST")
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
	v.SetDefault("ingest.inbox_dir", "./inbox")
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.file_timeout_seconds", 300)
	v.SetDefault("ingest.inter_batch_pause_ms", 50)
	v.SetDefault("ingest.sweep_interval_minutes", 10)
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce_ms", 2000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Ingest.InboxDir == "" {
		return fmt.Errorf("ingest.inbox_dir is required")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be > 0")
	}
	if c.Ingest.FileTimeoutSeconds <= 0 {
		return fmt.Errorf("ingest.file_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Watch.Enabled && c.Watch.DebounceMs <= 0 {
		return fmt.Errorf("watch.debounce_ms must be > 0 when watching is enabled")
	}
	return nil
}

// FileTimeout converts the per-file ceiling into a duration.
func (c Config) FileTimeout() time.Duration {
	return time.Duration(c.Ingest.FileTimeoutSeconds) * time.Second
}

// InterBatchPause converts the throttle into a duration.
func (c Config) InterBatchPause() time.Duration {
	return time.Duration(c.Ingest.InterBatchPauseMs) * time.Millisecond
}

// SweepInterval converts the registry sweep cadence into a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Ingest.SweepIntervalMinute) * time.Minute
}

// Debounce converts the watcher debounce into a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}
