package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix      = "MEMORANDA"
	configDirName  = ".memoranda"
	configFileName = "memoranda.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, if present, and applies environment
// overrides. MEMORANDA_LOGGING_LEVEL style keys map onto nested fields;
// MEMORANDA_LOG_LEVEL, MEMORANDA_LOG_FILE, MEMORANDA_LOG_JSON and
// MEMORANDA_ROOT are accepted as shorthands.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	for key, env := range map[string]string{
		"logging.level": "MEMORANDA_LOG_LEVEL",
		"logging.file":  "MEMORANDA_LOG_FILE",
		"logging.json":  "MEMORANDA_LOG_JSON",
		"storage.root":  "MEMORANDA_ROOT",
	} {
		if err := v.BindEnv(key, "MEMORANDA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		if configPath != "" {
			cfg.DataDir = filepath.Dir(configPath)
		} else {
			cfg.DataDir = filepath.Join(os.TempDir(), "memoranda")
		}
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "memoranda.log")
	}

	return cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override keys
// that the config file does not mention.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.root", cfg.Storage.Root)
	v.SetDefault("storage.content_patterns", cfg.Storage.ContentPatterns)
	v.SetDefault("storage.watch", cfg.Storage.Watch)

	v.SetDefault("cache.max_memos", cfg.Cache.MaxMemos)
	v.SetDefault("cache.ttl_seconds", cfg.Cache.TTLSeconds)
	v.SetDefault("cache.metadata_ttl_multiplier", cfg.Cache.MetadataTTLMultiplier)
	v.SetDefault("cache.max_metadata", cfg.Cache.MaxMetadata)

	v.SetDefault("search.recency_window_days", cfg.Search.RecencyWindowDays)
	v.SetDefault("search.snippet_length", cfg.Search.SnippetLength)
	v.SetDefault("search.snippet_context_padding", cfg.Search.SnippetContextPadding)

	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay_ms", cfg.Retry.InitialDelayMs)
	v.SetDefault("retry.max_delay_ms", cfg.Retry.MaxDelayMs)
	v.SetDefault("retry.multiplier", cfg.Retry.Multiplier)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.json", cfg.Logging.JSON)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.audit_file", cfg.Logging.AuditFile)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.address", cfg.Metrics.Address)

	v.SetDefault("server.name", cfg.Server.Name)
	v.SetDefault("server.warm_schedule", cfg.Server.WarmSchedule)
	v.SetDefault("server.tracing", cfg.Server.Tracing)

	v.SetDefault("data_dir", cfg.DataDir)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("storage", cfg.Storage)
	v.Set("cache", cfg.Cache)
	v.Set("search", cfg.Search)
	v.Set("retry", cfg.Retry)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("server", cfg.Server)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
