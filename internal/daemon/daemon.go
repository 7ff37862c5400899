package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/memoranda/internal/config"
	"github.com/harun/memoranda/internal/logger"
	"github.com/harun/memoranda/internal/metrics"
	"github.com/harun/memoranda/internal/observability"
	"github.com/harun/memoranda/internal/tracing"
	"github.com/harun/memoranda/pkg/cache"
	"github.com/harun/memoranda/pkg/mcpserver"
	"github.com/harun/memoranda/pkg/store"
)

// Options carries process-level dependencies. Zero values mean the OS
// filesystem, stdin/stdout and the current working directory.
type Options struct {
	Fs      afero.Fs
	Stdin   io.Reader
	Stdout  io.Writer
	WorkDir string
	Version string
}

// Daemon runs one MCP server over stdio together with its background
// maintenance.
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	opts   Options

	// Core modules
	store   *store.Store
	server  *mcpserver.Server
	metrics *metrics.Metrics
	audit   *observability.AuditLogger

	// Services
	maintenance   *Maintenance
	metricsServer *http.Server
	lifecycle     *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan error

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		opts.WorkDir = wd
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan error, 1),
	}

	if cfg.Server.Tracing {
		if err := tracing.InitOpenTelemetry(cfg.Server.Name, attribute.String("service.version", opts.Version)); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		d.shutdownTracing()
		_ = d.audit.Close()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d.maintenance = NewMaintenance(d.store, log.Component("maintenance"), d.metrics)
	if err := d.maintenance.Schedule(cfg.Server.WarmSchedule); err != nil {
		cancel()
		d.shutdownTracing()
		_ = d.store.Close()
		_ = d.audit.Close()
		return nil, fmt.Errorf("failed to schedule cache warming: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules builds the store and the MCP server in dependency order
func (d *Daemon) initializeCoreModules() error {
	if d.config.Metrics.Enabled {
		d.metrics = metrics.NewMetrics()
		d.logger.Info().Msg("Metrics initialized")
	}

	if d.config.Logging.AuditFile != "" {
		audit, err := observability.OpenAuditLog(d.config.Logging.AuditFile)
		if err != nil {
			d.logger.Warn().Err(err).Str("path", d.config.Logging.AuditFile).Msg("Failed to open audit log, continuing without it")
		} else {
			d.audit = audit
			d.logger.Info().Str("path", d.config.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	root, err := store.ResolveRoot(d.opts.Fs, d.config.Storage.Root, d.opts.WorkDir)
	if err != nil {
		return err
	}

	st, err := store.New(store.Config{
		Root:            root,
		Fs:              d.opts.Fs,
		Logger:          d.logger.Component("store"),
		Cache:           d.config.CacheSettings(),
		Search:          d.config.Search,
		Retry:           d.config.RetryPolicy(),
		ContentPatterns: d.config.Storage.ContentPatterns,
		Watch:           d.config.Storage.Watch,
		Metrics:         d.metrics,
		Audit:           d.audit,
	})
	if err != nil {
		return fmt.Errorf("failed to create memo store: %w", err)
	}
	d.store = st

	server, err := mcpserver.New(mcpserver.Config{
		Name:    d.config.Server.Name,
		Version: d.opts.Version,
		Service: st,
		Logger:  d.logger.Component("mcp"),
		Metrics: d.metrics,
	})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	d.server = server
	d.logger.Info().Str("root", root).Msg("MCP server initialized")

	return nil
}

// Start starts background services and begins serving stdin.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting memoranda server")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.metrics != nil {
		if err := d.startMetricsServer(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start metrics server")
		} else {
			logger.Info().Str("address", d.metricsServer.Addr).Msg("Metrics server started")
		}
	}

	d.maintenance.Start(tracing.WithTraceID(d.ctx, traceID))
	logger.Info().Msg("Maintenance started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.done <- d.server.Serve(d.ctx, d.opts.Stdin, d.opts.Stdout)
	}()

	return nil
}

func (d *Daemon) startMetricsServer() error {
	ln, err := net.Listen("tcp", d.config.Metrics.Address)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	d.metricsServer = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return nil
}

// Stop stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping memoranda server")

	d.cancel()

	d.maintenance.Stop()
	logger.Info().Msg("Maintenance stopped")

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	d.wg.Wait()

	if err := d.store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close memo store")
	}

	if err := d.audit.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit log")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	logger.Info().Msg("Memoranda server stopped")
	return nil
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to shut down tracing")
	}
	d.tracingEnabled = false
}

// Wait blocks until the client disconnects, ctx is cancelled or the
// process receives SIGINT/SIGTERM, then stops the daemon. It returns the
// serve loop's error, if any.
func (d *Daemon) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-sigCtx.Done():
		d.logger.Info().Msg("Shutdown requested")
	case serveErr = <-d.done:
		if serveErr == nil {
			d.logger.Info().Msg("Client closed the connection")
		}
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}

	return serveErr
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Root:    d.store.Root(),
		Cache:   d.store.CacheStats(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetStore returns the memo store
func (d *Daemon) GetStore() *store.Store {
	return d.store
}

// Status represents daemon status
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
	Root      string
	Cache     cache.Stats
}
