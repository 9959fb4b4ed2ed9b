// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// SnapshotReloads counts fact table reloads by outcome.
	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_snapshot_reloads_total",
			Help: "Fact table reloads from the materialized store",
		},
		[]string{"status"},
	)

	// SnapshotReloadDuration measures how long a reload takes.
	SnapshotReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_snapshot_reload_duration_seconds",
			Help:    "Fact table reload duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// SnapshotRows is the row count of the served fact table.
	SnapshotRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_snapshot_rows",
			Help: "Rows in the currently served fact table",
		},
	)

	// MaterializedRows is the row count written by the last materialization.
	MaterializedRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_materialized_rows",
			Help: "Rows written by the most recent materialization",
		},
	)

	// FilterDuration measures filter evaluation latency.
	FilterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_filter_duration_seconds",
			Help:    "Filter and aggregation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"cache"}, // hit, miss
	)

	// Exports counts export requests by format and outcome.
	Exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_exports_total",
			Help: "Export requests",
		},
		[]string{"format", "status"}, // status: ok, empty, failed
	)

	// SyncRuns counts extract sync runs by trigger and outcome.
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_sync_runs_total",
			Help: "Extract download and merge runs",
		},
		[]string{"trigger", "status"}, // trigger: schedule, manual
	)

	// SyncDuration measures end-to-end sync duration.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_sync_duration_seconds",
			Help:    "Extract sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ActiveSessions is the number of live dashboard sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_active_sessions",
			Help: "Live dashboard sessions",
		},
	)
)
