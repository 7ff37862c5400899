package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/memoranda/internal/metrics"
	"github.com/harun/memoranda/internal/tracing"
	"github.com/harun/memoranda/pkg/store"
)

// Warmer is the part of the store maintenance needs.
type Warmer interface {
	WarmCache(ctx context.Context) (int, error)
	ClearCache()
}

var _ Warmer = (*store.Store)(nil)

// Maintenance periodically re-warms the memo cache on a cron schedule.
type Maintenance struct {
	warmer  Warmer
	logger  zerolog.Logger
	metrics *metrics.Metrics

	scheduler *cron.Cron
	entry     cron.EntryID

	mu     sync.Mutex
	ctx    context.Context
	runs   int
	warmed int
}

// NewMaintenance creates an unscheduled maintenance loop.
func NewMaintenance(w Warmer, logger zerolog.Logger, m *metrics.Metrics) *Maintenance {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Maintenance{
		warmer:    w,
		logger:    logger,
		metrics:   m,
		scheduler: cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:       context.Background(),
	}
}

// Schedule registers the warm job. An empty spec leaves the loop idle.
func (m *Maintenance) Schedule(spec string) error {
	if spec == "" {
		return nil
	}

	id, err := m.scheduler.AddFunc(spec, func() { m.RunOnce() })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	m.entry = id
	return nil
}

// Scheduled reports whether a warm job is registered.
func (m *Maintenance) Scheduled() bool {
	return m.entry != 0
}

// Start warms the cache once and starts the scheduler. Jobs run with ctx
// until Stop.
func (m *Maintenance) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	m.logger.Info().Bool("scheduled", m.Scheduled()).Msg("Maintenance loop started")

	m.RunOnce()
	m.scheduler.Start()
}

// Stop stops the scheduler and waits for a running job.
func (m *Maintenance) Stop() {
	<-m.scheduler.Stop().Done()
	m.logger.Info().Msg("Maintenance loop stopping")
}

// RunOnce clears stale entries and re-reads every memo into the cache.
func (m *Maintenance) RunOnce() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	ctx = tracing.NewRequestContext(ctx)
	ctx = tracing.WithOperation(ctx, "warm_cache")
	logger := tracing.LoggerFromContext(ctx, m.logger)

	m.warmer.ClearCache()
	n, err := m.warmer.WarmCache(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache warming failed")
		return
	}

	m.mu.Lock()
	m.runs++
	m.warmed = n
	m.mu.Unlock()

	m.metrics.SetMemos(n)
	logger.Debug().Int("memos", n).Msg("Cache warmed")
}

// Stats returns how many warm runs succeeded and the last memo count.
func (m *Maintenance) Stats() (runs, warmed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs, m.warmed
}
