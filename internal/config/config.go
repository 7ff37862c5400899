package config

import (
	"encoding/json"
	"time"

	"github.com/harun/memoranda/pkg/cache"
	"github.com/harun/memoranda/pkg/retry"
	"github.com/harun/memoranda/pkg/search"
)

// Config represents the main memoranda configuration
type Config struct {
	// Storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Search tuning
	Search search.Config `json:"search" mapstructure:"search"`

	// Retry policy for filesystem operations
	Retry RetryConfig `json:"retry" mapstructure:"retry"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Server (MCP over stdio)
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Data directory for logs and the audit trail
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StorageConfig controls where memos live
type StorageConfig struct {
	// Root is searched for .memoranda directories. Empty means the
	// enclosing git repository, falling back to the working directory.
	Root            string   `json:"root" mapstructure:"root"`
	ContentPatterns []string `json:"content_patterns" mapstructure:"content_patterns"`
	Watch           bool     `json:"watch" mapstructure:"watch"`
}

// CacheConfig holds cache sizes and lifetimes
type CacheConfig struct {
	MaxMemos              int `json:"max_memos" mapstructure:"max_memos"`
	TTLSeconds            int `json:"ttl_seconds" mapstructure:"ttl_seconds"`
	MetadataTTLMultiplier int `json:"metadata_ttl_multiplier" mapstructure:"metadata_ttl_multiplier"`
	MaxMetadata           int `json:"max_metadata" mapstructure:"max_metadata"`
}

// RetryConfig holds the retry policy
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier     float64 `json:"multiplier" mapstructure:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	JSON      bool   `json:"json" mapstructure:"json"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// ServerConfig holds MCP server settings
type ServerConfig struct {
	Name string `json:"name" mapstructure:"name"`
	// WarmSchedule is a cron spec for periodic cache warming. Empty
	// disables it.
	WarmSchedule string `json:"warm_schedule" mapstructure:"warm_schedule"`
	Tracing      bool   `json:"tracing" mapstructure:"tracing"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	cacheDefaults := cache.DefaultConfig()
	retryDefaults := retry.ForFileIO()

	return &Config{
		Storage: StorageConfig{
			ContentPatterns: []string{"*.md"},
			Watch:           false,
		},
		Cache: CacheConfig{
			MaxMemos:              cacheDefaults.MaxMemos,
			TTLSeconds:            int(cacheDefaults.TTL / time.Second),
			MetadataTTLMultiplier: cacheDefaults.MetadataTTLMultiplier,
			MaxMetadata:           cacheDefaults.MaxMetadata,
		},
		Search: search.DefaultConfig(),
		Retry: RetryConfig{
			MaxAttempts:    retryDefaults.MaxAttempts,
			InitialDelayMs: int(retryDefaults.InitialDelay / time.Millisecond),
			MaxDelayMs:     int(retryDefaults.MaxDelay / time.Millisecond),
			Multiplier:     retryDefaults.Multiplier,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
		Server: ServerConfig{
			Name:         "memoranda",
			WarmSchedule: "@every 10m",
		},
	}
}

// CacheSettings converts the cache section into cache.Config.
func (c *Config) CacheSettings() cache.Config {
	return cache.Config{
		MaxMemos:              c.Cache.MaxMemos,
		TTL:                   time.Duration(c.Cache.TTLSeconds) * time.Second,
		MetadataTTLMultiplier: c.Cache.MetadataTTLMultiplier,
		MaxMetadata:           c.Cache.MaxMetadata,
	}
}

// RetryPolicy converts the retry section into a retry.Policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.ForFileIO()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialDelayMs > 0 {
		p.InitialDelay = time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
	}
	if c.Retry.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
	}
	if c.Retry.Multiplier > 0 {
		p.Multiplier = c.Retry.Multiplier
	}
	return p
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate returns the first validation problem, if any.
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
