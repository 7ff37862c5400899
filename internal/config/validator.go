package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateContentPatterns checks that every pattern compiles. Patterns
// are matched against base names, so separators are rejected.
func (v *Validator) ValidateContentPatterns(patterns []string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("storage.content_patterns cannot be empty")
	}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("storage.content_patterns contains an empty pattern")
		}
		if strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("content pattern %q must not contain a path separator", p)
		}
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid content pattern %q: %w", p, err)
		}
	}
	return nil
}

// ValidateSchedule validates a cron spec. Empty disables scheduling.
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid warm schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateAddress validates a host:port listen address
func (v *Validator) ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid metrics address %q: %w", addr, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Storage
	if err := v.ValidateContentPatterns(cfg.Storage.ContentPatterns); err != nil {
		errors = append(errors, err)
	}

	// Cache
	if cfg.Cache.MaxMemos <= 0 {
		errors = append(errors, fmt.Errorf("cache.max_memos must be > 0"))
	}
	if cfg.Cache.MaxMetadata <= 0 {
		errors = append(errors, fmt.Errorf("cache.max_metadata must be > 0"))
	}
	if cfg.Cache.TTLSeconds <= 0 {
		errors = append(errors, fmt.Errorf("cache.ttl_seconds must be > 0"))
	}
	if cfg.Cache.MetadataTTLMultiplier < 1 {
		errors = append(errors, fmt.Errorf("cache.metadata_ttl_multiplier must be >= 1"))
	}

	// Search
	if cfg.Search.RecencyWindowDays <= 0 {
		errors = append(errors, fmt.Errorf("search.recency_window_days must be > 0"))
	}
	if cfg.Search.SnippetLength <= 0 {
		errors = append(errors, fmt.Errorf("search.snippet_length must be > 0"))
	}
	if cfg.Search.SnippetContextPadding <= 0 {
		errors = append(errors, fmt.Errorf("search.snippet_context_padding must be > 0"))
	}

	// Retry
	if cfg.Retry.MaxAttempts < 1 {
		errors = append(errors, fmt.Errorf("retry.max_attempts must be >= 1"))
	}
	if cfg.Retry.InitialDelayMs < 0 {
		errors = append(errors, fmt.Errorf("retry.initial_delay_ms must be >= 0"))
	}
	if cfg.Retry.MaxDelayMs < cfg.Retry.InitialDelayMs {
		errors = append(errors, fmt.Errorf("retry.max_delay_ms must be >= retry.initial_delay_ms"))
	}
	if cfg.Retry.Multiplier < 1 {
		errors = append(errors, fmt.Errorf("retry.multiplier must be >= 1"))
	}

	// Logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging.max_age must be >= 0"))
	}

	// Metrics
	if cfg.Metrics.Enabled {
		if err := v.ValidateAddress(cfg.Metrics.Address); err != nil {
			errors = append(errors, err)
		}
	}

	// Server
	if strings.TrimSpace(cfg.Server.Name) == "" {
		errors = append(errors, fmt.Errorf("server.name cannot be empty"))
	}
	if err := v.ValidateSchedule(cfg.Server.WarmSchedule); err != nil {
		errors = append(errors, err)
	}

	return errors
}
