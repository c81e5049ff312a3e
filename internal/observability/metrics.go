// Package observability provides Prometheus metrics for the graph
// scanner engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graph_scanner"

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics
// is valid and records nothing, so tests and callers that do not scrape
// can pass nil.
type Metrics struct {
	// Engine metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PatternsDetected  *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Worker metrics
	RefreshRunsTotal   *prometheus.CounterVec
	AddressesRefreshed prometheus.Counter
}

// NewMetrics creates a Metrics instance registered against reg. Passing
// prometheus.DefaultRegisterer wires the standard registry; tests pass
// a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total engine operations by operation and status",
		}, []string{"operation", "status"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		PatternsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "patterns_detected_total",
			Help:      "Total detected patterns by type and severity",
		}, []string{"pattern_type", "severity"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits by cache kind",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses by cache kind",
		}, []string{"cache"}),
		RefreshRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "refresh_runs_total",
			Help:      "Total metrics refresh runs by status",
		}, []string{"status"}),
		AddressesRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "addresses_refreshed_total",
			Help:      "Total addresses refreshed across all runs",
		}),
	}
}

// ObserveOperation records one engine operation outcome and its latency
func (m *Metrics) ObserveOperation(operation, status string, started time.Time) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordPattern records one detected pattern
func (m *Metrics) RecordPattern(patternType, severity string) {
	if m == nil {
		return
	}
	m.PatternsDetected.WithLabelValues(patternType, severity).Inc()
}

// RecordCacheHit records a hit on the named cache
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a miss on the named cache
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}

// RecordRefreshRun records one refresh run outcome
func (m *Metrics) RecordRefreshRun(status string, addresses int) {
	if m == nil {
		return
	}
	m.RefreshRunsTotal.WithLabelValues(status).Inc()
	m.AddressesRefreshed.Add(float64(addresses))
}

// Handler returns an HTTP handler exposing the default Prometheus
// registry, for any process that embeds the engine and wants scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
