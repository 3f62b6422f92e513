// Package jobs orchestrates ranking calculation runs and exposes metrics
// for them.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRankingRunsTotal       = "ranking_runs_total"
	MetricRankingRunDuration     = "ranking_run_duration_seconds"
	MetricRankingScopeErrors     = "ranking_scope_errors_total"
	MetricRankingLastRunUnixtime = "ranking_last_run_timestamp_seconds"
	MetricRankingLastRunRows     = "ranking_last_run_snapshots_written"
)

// Status constants for run completion.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
)

// Scope error reasons for labeling.
const (
	ReasonComputeFailed = "compute_failed"
	ReasonNonFinite     = "non_finite_rating"
	ReasonPersistFailed = "persist_failed"
)

// Metrics contains Prometheus metrics for ranking runs. All operations are
// thread-safe.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	scopeErrors *prometheus.CounterVec
	lastRunTime prometheus.Gauge
	lastRunRows prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingRunsTotal,
				Help: "Total number of ranking calculation runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRankingRunDuration,
				Help:    "Histogram of ranking run duration in seconds",
				Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0, 600.0},
			},
		),
		scopeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingScopeErrors,
				Help: "Total number of per-scope computation failures by scope type and reason",
			},
			[]string{"scope_type", "reason"},
		),
		lastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricRankingLastRunUnixtime,
				Help: "Unix timestamp of the last completed ranking run",
			},
		),
		lastRunRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricRankingLastRunRows,
				Help: "Number of snapshot rows written by the last ranking run",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRunsTotal increments the run counter for a completion status.
func (m *Metrics) IncRunsTotal(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// ObserveRunDuration records a run duration sample.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.runDuration.Observe(seconds)
}

// IncScopeErrors increments the scope error counter.
func (m *Metrics) IncScopeErrors(scopeType, reason string) {
	m.scopeErrors.WithLabelValues(scopeType, reason).Inc()
}

// SetLastRun records the completion time and row count of the last run.
func (m *Metrics) SetLastRun(unixtime float64, rows float64) {
	m.lastRunTime.Set(unixtime)
	m.lastRunRows.Set(rows)
}

// Collectors returns all Prometheus collectors for registration and tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.runDuration,
		m.scopeErrors,
		m.lastRunTime,
		m.lastRunRows,
	}
}
