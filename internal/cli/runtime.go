package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/harun/memoranda/internal/config"
	"github.com/harun/memoranda/internal/logger"
	"github.com/harun/memoranda/internal/observability"
	"github.com/harun/memoranda/pkg/store"
)

// newFs is replaced in tests.
var newFs = func() afero.Fs { return afero.NewOsFs() }

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if rootDir != "" {
		cfg.Storage.Root = rootDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// newLogger builds the process logger. Console output goes to stderr
// when console is true; the log file is always written.
func newLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    !cfg.Logging.JSON,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    os.Stderr,
	})
}

// session bundles what one-shot commands need.
type session struct {
	cfg   *config.Config
	log   *logger.Logger
	audit *observability.AuditLogger
	store *store.Store
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg, logLevel != "")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s := &session{cfg: cfg, log: log}

	if cfg.Logging.AuditFile != "" {
		audit, err := observability.OpenAuditLog(cfg.Logging.AuditFile)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open audit log, continuing without it")
		} else {
			s.audit = audit
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	fsys := newFs()
	root, err := store.ResolveRoot(fsys, cfg.Storage.Root, wd)
	if err != nil {
		s.Close()
		return nil, err
	}

	st, err := store.New(store.Config{
		Root:            root,
		Fs:              fsys,
		Logger:          log.Component("store"),
		Cache:           cfg.CacheSettings(),
		Search:          cfg.Search,
		Retry:           cfg.RetryPolicy(),
		ContentPatterns: cfg.Storage.ContentPatterns,
		Audit:           s.audit,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = st

	return s, nil
}

func (s *session) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
	_ = s.audit.Close()
	_ = s.log.Close()
}
