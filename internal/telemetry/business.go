package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// BusinessTracer provides Sentry spans for the domain stages of an audit
// run, so fit quality and governance outcomes show up alongside the error
// traffic they explain.
type BusinessTracer struct{}

// NewBusinessTracer creates a new instance of BusinessTracer.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{}
}

// FitOutcome summarises one decline-curve fit for span recording.
type FitOutcome struct {
	Qi              float64
	Di              float64
	Iterations      int
	Converged       bool
	ProducingMonths int
	FitTime         time.Duration
}

// GovernanceOutcome summarises one governance scan for span recording.
type GovernanceOutcome struct {
	FlagCount       int
	HighestSeverity string
	ThresholdPct    float64
	MonthsScanned   int
}

// SweepOutcome summarises one sensitivity sweep for span recording.
type SweepOutcome struct {
	Scenarios int
	SweepTime time.Duration
}

// TraceDeclineFit starts a span covering the parameter estimation for one
// field's production series.
func (bt *BusinessTracer) TraceDeclineFit(ctx context.Context, fieldName string, observations int) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "decline_fit")
	span.SetTag("field", fieldName)
	span.SetData("observations", observations)
	return ctx, span
}

// RecordFitOutcome adds the fitted parameters and convergence state to an
// existing fit span.
func (bt *BusinessTracer) RecordFitOutcome(span *sentry.Span, outcome FitOutcome) {
	span.SetData("qi", outcome.Qi)
	span.SetData("di", outcome.Di)
	span.SetData("iterations", outcome.Iterations)
	span.SetData("producing_months", outcome.ProducingMonths)
	span.SetData("fit_time_ms", outcome.FitTime.Milliseconds())
	if outcome.Converged {
		span.SetTag("converged", "true")
	} else {
		span.SetTag("converged", "false")
	}
}

// TraceGovernanceScan starts a span covering the materiality scan of one
// fiscal table.
func (bt *BusinessTracer) TraceGovernanceScan(ctx context.Context, fieldName string, thresholdPct float64) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "governance_scan")
	span.SetTag("field", fieldName)
	span.SetData("threshold_pct", thresholdPct)
	return ctx, span
}

// RecordGovernanceOutcome records the flags a governance scan raised onto
// its span.
func (bt *BusinessTracer) RecordGovernanceOutcome(span *sentry.Span, outcome GovernanceOutcome) {
	span.SetData("flag_count", outcome.FlagCount)
	span.SetData("months_scanned", outcome.MonthsScanned)
	span.SetData("threshold_pct", outcome.ThresholdPct)
	if outcome.HighestSeverity != "" {
		span.SetTag("highest_severity", outcome.HighestSeverity)
	}
}

// TraceSensitivitySweep starts a span covering the price scenario sweep.
func (bt *BusinessTracer) TraceSensitivitySweep(ctx context.Context, fieldName string, scenarios int) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "sensitivity_sweep")
	span.SetTag("field", fieldName)
	span.SetData("scenarios", scenarios)
	return ctx, span
}

// RecordSweepOutcome records sweep timing onto its span.
func (bt *BusinessTracer) RecordSweepOutcome(span *sentry.Span, outcome SweepOutcome) {
	span.SetData("scenarios", outcome.Scenarios)
	span.SetData("sweep_time_ms", outcome.SweepTime.Milliseconds())
}

// TraceNotification starts a span for alert delivery.
func (bt *BusinessTracer) TraceNotification(ctx context.Context, channel string, severity string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "notification")
	span.SetTag("channel", channel)
	span.SetTag("severity", severity)
	return ctx, span
}

// RecordNotificationResult records the outcome of a notification attempt.
func (bt *BusinessTracer) RecordNotificationResult(span *sentry.Span, delivered bool, deliveryTime time.Duration) {
	span.SetData("delivered", delivered)
	span.SetData("delivery_time_ms", deliveryTime.Milliseconds())
	if delivered {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusUnknown
	}
}
