package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "declinewatch_"

	resultSuccess = "success"
	resultError   = "error"

	fitFailureInsufficientData = "insufficient_data"
	fitFailureDivergence       = "divergence"
)

var (
	registerOnce sync.Once

	auditRuns    *prometheus.CounterVec
	auditLatency *prometheus.HistogramVec

	fitFailures *prometheus.CounterVec
	flagsRaised *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	notificationsTotal *prometheus.CounterVec
	scheduledRuns      prometheus.Counter

	cacheLookups *prometheus.CounterVec
)

// Init registers the audit engine metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		auditRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "audit_runs_total",
				Help: "Total audit pipeline runs by result",
			},
			[]string{"result"},
		)
		auditLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "audit_run_latency_seconds",
				Help:    "Audit pipeline latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		fitFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fit_failures_total",
				Help: "Total decline curve fit failures by reason",
			},
			[]string{"reason"},
		)
		flagsRaised = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "governance_flags_total",
				Help: "Total governance flags raised by severity",
			},
			[]string{"severity"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total governance notifications by result",
			},
			[]string{"result"},
		)
		scheduledRuns = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduled_runs_total",
				Help: "Total audit runs triggered by the scheduler",
			},
		)

		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fit_cache_lookups_total",
				Help: "Total fit cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			auditRuns,
			auditLatency,
			fitFailures,
			flagsRaised,
			exportTotal,
			exportLatency,
			notificationsTotal,
			scheduledRuns,
			cacheLookups,
		)
	})
}

// ObserveAuditRun records one pipeline run.
func ObserveAuditRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if auditRuns != nil {
		auditRuns.WithLabelValues(result).Inc()
	}
	if auditLatency != nil {
		auditLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncFitFailure increments the fit failure counter.
func IncFitFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if fitFailures != nil {
		fitFailures.WithLabelValues(reason).Inc()
	}
}

// IncFlag increments the governance flag counter.
func IncFlag(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if flagsRaised != nil {
		flagsRaised.WithLabelValues(severity).Inc()
	}
}

// ObserveExport records one report export.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncNotification increments the notification counter.
func IncNotification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(result).Inc()
	}
}

// IncScheduledRun increments the scheduler trigger counter.
func IncScheduledRun() {
	if scheduledRuns != nil {
		scheduledRuns.Inc()
	}
}

// IncCacheLookup increments the fit cache counter.
func IncCacheLookup(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(outcome).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	FitFailureInsufficientData = fitFailureInsufficientData
	FitFailureDivergence       = fitFailureDivergence

	CacheHit  = "hit"
	CacheMiss = "miss"
)
