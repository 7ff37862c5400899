package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec
	MemosTotal             prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Search metrics
	IndexRebuildsTotal   prometheus.Counter
	IndexRebuildDuration prometheus.Histogram
	SearchResultsTotal   prometheus.Counter

	// Retry metrics
	RetriesTotal *prometheus.CounterVec

	// RPC metrics
	RPCRequestsTotal *prometheus.CounterVec
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Store metrics
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memoranda_store_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_store_errors_total",
				Help: "Total number of store errors",
			},
			[]string{"operation", "error_type"},
		),
		MemosTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memoranda_memos",
				Help: "Number of memos seen by the last full listing",
			},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		// Search metrics
		IndexRebuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memoranda_index_rebuilds_total",
				Help: "Total number of search index rebuilds",
			},
		),
		IndexRebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memoranda_index_rebuild_duration_seconds",
				Help:    "Duration of search index rebuilds in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SearchResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memoranda_search_results_total",
				Help: "Total number of search results returned",
			},
		),

		// Retry metrics
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_retries_total",
				Help: "Total number of retried filesystem operations",
			},
			[]string{"operation"},
		),

		// RPC metrics
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_rpc_requests_total",
				Help: "Total number of JSON-RPC requests",
			},
			[]string{"method", "status"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoranda_tool_calls_total",
				Help: "Total number of tool calls",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memoranda_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Store metrics
	m.registry.MustRegister(m.StoreOperationsTotal)
	m.registry.MustRegister(m.StoreOperationDuration)
	m.registry.MustRegister(m.StoreErrorsTotal)
	m.registry.MustRegister(m.MemosTotal)

	// Cache metrics
	m.registry.MustRegister(m.CacheHitsTotal)
	m.registry.MustRegister(m.CacheMissesTotal)

	// Search metrics
	m.registry.MustRegister(m.IndexRebuildsTotal)
	m.registry.MustRegister(m.IndexRebuildDuration)
	m.registry.MustRegister(m.SearchResultsTotal)

	// Retry metrics
	m.registry.MustRegister(m.RetriesTotal)

	// RPC metrics
	m.registry.MustRegister(m.RPCRequestsTotal)
	m.registry.MustRegister(m.ToolCallsTotal)
	m.registry.MustRegister(m.ToolCallDuration)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStoreOperation records the outcome and duration of a store operation.
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error, errorType string) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(operation, errorType).Inc()
	}
}

// SetMemos sets the memo count gauge.
func (m *Metrics) SetMemos(n int) {
	if m == nil {
		return
	}
	m.MemosTotal.Set(float64(n))
}

// RecordCacheHit counts a hit in the named cache.
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a miss in the named cache.
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordIndexRebuild records a search index rebuild.
func (m *Metrics) RecordIndexRebuild(duration time.Duration) {
	if m == nil {
		return
	}
	m.IndexRebuildsTotal.Inc()
	m.IndexRebuildDuration.Observe(duration.Seconds())
}

// RecordSearchResults adds to the search result counter.
func (m *Metrics) RecordSearchResults(n int) {
	if m == nil {
		return
	}
	m.SearchResultsTotal.Add(float64(n))
}

// RecordRetry counts one retry of a filesystem operation.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// RecordRPCRequest counts a JSON-RPC request by method.
func (m *Metrics) RecordRPCRequest(method string, failed bool) {
	if m == nil {
		return
	}
	s := "success"
	if failed {
		s = "error"
	}
	m.RPCRequestsTotal.WithLabelValues(method, s).Inc()
}

// RecordToolCall records the outcome and duration of a tool call.
func (m *Metrics) RecordToolCall(tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status(err)).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
