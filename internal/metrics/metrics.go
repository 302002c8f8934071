// Package metrics provides Prometheus collectors for errtrack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "errtrack"
)

// Outcome labels for ReportsTotal.
const (
	OutcomeCreated  = "created"
	OutcomeGrouped  = "grouped"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// RateLimitedTotal counts ingest requests rejected by the per-project limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total ingest requests rejected by rate limiting",
		},
	)
)

// Ingestion metrics
var (
	// ReportsTotal counts error reports by entry variant (sdk, incident) and outcome.
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "reports_total",
			Help:      "Total error reports processed",
		},
		[]string{"variant", "outcome"},
	)

	GroupsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "groups_created_total",
			Help:      "Total error groups created",
		},
	)

	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "report_duration_seconds",
			Help:      "Time to validate, group and persist one report",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"variant"},
	)

	// WriteConflictsTotal counts storage conflicts retried during ingestion.
	WriteConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "write_conflicts_total",
			Help:      "Total storage write conflicts retried",
		},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts notifications by type and result (sent, skipped, failed).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total notifications by type and result",
		},
		[]string{"type", "result"},
	)
)

// Assistant metrics
var (
	// AssistantRequestsTotal counts help requests by answer source (provider name or fallback).
	AssistantRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Total help assistant requests",
		},
		[]string{"source"},
	)

	AssistantProviderErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "provider_errors_total",
			Help:      "Total AI provider failures answered by the keyword fallback",
		},
	)
)

// Auth metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total authentication attempts",
		},
		[]string{"method", "result"}, // api_key|jwt, success|failure
	)
)

// Info metric
var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit string) {
	BuildInfo.WithLabelValues(version, commit).Set(1)
}
