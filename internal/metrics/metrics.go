// Package metrics holds the Prometheus collectors for refresh cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results used as label values.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics is the collector set for one process. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	LastSuccess    prometheus.Gauge
	UsersRefreshed prometheus.Counter
	UsersSkipped   *prometheus.CounterVec
	FetchFailures  *prometheus.CounterVec
	RowsPruned     prometheus.Counter
	RowsCreated    prometheus.Counter
	PointsChanged  prometheus.Counter
}

// New creates and registers all leaderboard metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_cycles_total",
				Help: "Refresh cycles by result",
			},
			[]string{"result"},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leaderboard_cycle_duration_seconds",
				Help:    "Wall time of completed refresh cycles",
				Buckets: []float64{5, 15, 30, 60, 120, 240, 480, 900},
			},
		),

		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "leaderboard_last_success_timestamp_seconds",
				Help: "Unix time of the last successful cycle",
			},
		),

		UsersRefreshed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leaderboard_users_refreshed_total",
				Help: "Rows upserted with fresh signals",
			},
		),

		UsersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_users_skipped_total",
				Help: "Selected users not refreshed this cycle, by reason",
			},
			[]string{"reason"},
		),

		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_fetch_failures_total",
				Help: "Per-user signal fetch failures, by signal",
			},
			[]string{"signal"},
		),

		RowsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leaderboard_rows_pruned_total",
				Help: "Rows deleted because the user left the community",
			},
		),

		RowsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leaderboard_rows_created_total",
				Help: "Bare rows inserted for new subscribers",
			},
		),

		PointsChanged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "leaderboard_points_changed_total",
				Help: "Rows whose rounded points changed after scoring",
			},
		),
	}

	m.registry.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.LastSuccess,
		m.UsersRefreshed,
		m.UsersSkipped,
		m.FetchFailures,
		m.RowsPruned,
		m.RowsCreated,
		m.PointsChanged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry backing this collector set
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle records the outcome of one cycle
func (m *Metrics) ObserveCycle(result string, elapsed time.Duration) {
	m.Cycles.WithLabelValues(result).Inc()
	if result == ResultSkipped {
		return
	}
	m.CycleDuration.Observe(elapsed.Seconds())
	if result == ResultSuccess {
		m.LastSuccess.SetToCurrentTime()
	}
}
