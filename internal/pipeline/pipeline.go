// Package pipeline chains the audit stages for a single field: decline fit,
// reconciliation, fiscal pricing, governance scan, sensitivity sweep and
// summary. One Run is one complete audit; nothing persists between runs.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/declinewatch/declinewatch-go/internal/decline"
	"github.com/declinewatch/declinewatch-go/internal/fiscal"
	"github.com/declinewatch/declinewatch-go/internal/governance"
	"github.com/declinewatch/declinewatch-go/internal/metrics"
	"github.com/declinewatch/declinewatch-go/internal/models"
	"github.com/declinewatch/declinewatch-go/internal/recon"
	"github.com/declinewatch/declinewatch-go/internal/telemetry"
)

// RunOptions carries the per-run audit parameters. Zero values fall back to
// the documented defaults, so the empty struct is a valid full-default run.
type RunOptions struct {
	PricePerBarrel decimal.Decimal
	ThresholdPct   float64
	SweepPrices    []decimal.Decimal
	TrendPeriod    int

	// Parameters, when set, reuses a previously fitted model instead of
	// fitting again. The fit cache feeds this. Callers must only pass
	// parameters fitted on the same observation series.
	Parameters *models.DeclineModelParameters
}

func (o RunOptions) withDefaults() RunOptions {
	if o.PricePerBarrel.IsZero() {
		o.PricePerBarrel = fiscal.DefaultPricePerBarrel
	}
	if o.ThresholdPct == 0 {
		o.ThresholdPct = governance.DefaultThresholdPct
	}
	if len(o.SweepPrices) == 0 {
		o.SweepPrices = fiscal.DefaultPriceScenarios()
	}
	if o.TrendPeriod == 0 {
		o.TrendPeriod = recon.DefaultTrendPeriod
	}
	return o
}

// Result is the read-only snapshot bundle one audit run produces.
type Result struct {
	RunID          uuid.UUID                     `json:"run_id"`
	FieldName      string                        `json:"field_name"`
	Parameters     models.DeclineModelParameters `json:"parameters"`
	Reconciliation []models.ReconciliationRecord `json:"reconciliation"`
	Fiscal         []models.FiscalRecord         `json:"fiscal"`
	Flags          []models.GovernanceFlag       `json:"governance_flags"`
	Summary        models.FiscalSummary          `json:"summary"`
	Sweep          []models.SweepResult          `json:"sweep"`
	VarianceTrend  []float64                     `json:"variance_trend_pct"`
	Elapsed        time.Duration                 `json:"-"`
}

// Runner executes audit runs. Safe for concurrent use: runs share no
// mutable state.
type Runner struct {
	fitter   *decline.Fitter
	auditor  *governance.Auditor
	clock    governance.Clock
	logger   *logrus.Logger
	tracer   trace.Tracer
	business *telemetry.BusinessTracer
}

// NewRunner builds a runner with the default fitter. A nil clock uses the
// system clock.
func NewRunner(logger *logrus.Logger, clock governance.Clock) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = governance.SystemClock{}
	}
	return &Runner{
		fitter:   decline.NewFitter(),
		auditor:  governance.NewAuditor(clock),
		clock:    clock,
		logger:   logger,
		tracer:   telemetry.GetTracer("declinewatch.pipeline"),
		business: telemetry.NewBusinessTracer(),
	}
}

// Run audits one field's production series end to end.
func (r *Runner) Run(ctx context.Context, fieldName string, obs []models.ProductionObservation, opts RunOptions) (*Result, error) {
	start := time.Now()
	runID := uuid.New()
	opts = opts.withDefaults()

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID.String()),
		attribute.String("field.name", fieldName),
		attribute.Int("observations.count", len(obs)),
	))
	defer span.End()

	log := r.logger.WithFields(logrus.Fields{
		"run_id": runID.String(),
		"field":  fieldName,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var params models.DeclineModelParameters
	if opts.Parameters != nil {
		params = *opts.Parameters
		span.SetAttributes(attribute.Bool("fit.cached", true))
		log.Debug("Reusing cached decline model")
	} else {
		var err error
		params, err = r.fit(ctx, fieldName, obs)
		if err != nil {
			log.WithError(err).Warn("Decline curve fit failed")
			return nil, r.fail(span, start, err)
		}
		log.WithFields(logrus.Fields{
			"qi":         params.Qi,
			"di":         params.Di,
			"iterations": params.Iterations,
		}).Info("Decline curve fitted")
	}

	table, err := r.reconcile(ctx, obs, params)
	if err != nil {
		return nil, r.fail(span, start, err)
	}

	fiscalTable, err := r.price(ctx, table, opts.PricePerBarrel)
	if err != nil {
		return nil, r.fail(span, start, err)
	}

	flags, err := r.audit(ctx, fieldName, fiscalTable, opts.ThresholdPct)
	if err != nil {
		return nil, r.fail(span, start, err)
	}
	for _, f := range flags {
		metrics.IncFlag(string(f.Severity))
	}

	sweep, err := r.sweep(ctx, fieldName, table, opts.SweepPrices)
	if err != nil {
		return nil, r.fail(span, start, err)
	}

	summary, err := governance.Summarize(fieldName, fiscalTable, flags,
		opts.PricePerBarrel, opts.ThresholdPct, r.clock)
	if err != nil {
		return nil, r.fail(span, start, err)
	}

	elapsed := time.Since(start)
	metrics.ObserveAuditRun(metrics.ResultSuccess, elapsed)
	span.SetAttributes(
		attribute.Int("flags.count", len(flags)),
		attribute.String("severity.highest", string(summary.HighestSeverity())),
	)
	log.WithFields(logrus.Fields{
		"flags":           len(flags),
		"revenue_at_risk": summary.TotalRevenueAtRisk.String(),
		"elapsed":         elapsed.String(),
	}).Info("Audit run complete")

	return &Result{
		RunID:          runID,
		FieldName:      fieldName,
		Parameters:     params,
		Reconciliation: table,
		Fiscal:         fiscalTable,
		Flags:          flags,
		Summary:        summary,
		Sweep:          sweep,
		VarianceTrend:  recon.VarianceTrend(table, opts.TrendPeriod),
		Elapsed:        elapsed,
	}, nil
}

func (r *Runner) fail(span trace.Span, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.ObserveAuditRun(metrics.ResultError, time.Since(start))
	return err
}

func (r *Runner) fit(ctx context.Context, fieldName string, obs []models.ProductionObservation) (models.DeclineModelParameters, error) {
	_, span := r.tracer.Start(ctx, "pipeline.fit")
	defer span.End()
	_, bspan := r.business.TraceDeclineFit(ctx, fieldName, len(obs))
	defer bspan.Finish()

	fitStart := time.Now()
	params, err := r.fitter.Fit(obs)
	if err != nil {
		switch {
		case errors.Is(err, decline.ErrInsufficientData):
			metrics.IncFitFailure(metrics.FitFailureInsufficientData)
		case errors.Is(err, decline.ErrFitDiverged):
			metrics.IncFitFailure(metrics.FitFailureDivergence)
		default:
			metrics.IncFitFailure("")
		}
		return models.DeclineModelParameters{}, err
	}
	span.SetAttributes(
		attribute.Float64("fit.qi", params.Qi),
		attribute.Float64("fit.di", params.Di),
		attribute.Int("fit.iterations", params.Iterations),
	)
	r.business.RecordFitOutcome(bspan, telemetry.FitOutcome{
		Qi:              params.Qi,
		Di:              params.Di,
		Iterations:      params.Iterations,
		Converged:       params.Converged,
		ProducingMonths: models.ProducingCount(obs),
		FitTime:         time.Since(fitStart),
	})
	return params, nil
}

func (r *Runner) reconcile(ctx context.Context, obs []models.ProductionObservation, params models.DeclineModelParameters) ([]models.ReconciliationRecord, error) {
	_, span := r.tracer.Start(ctx, "pipeline.reconcile")
	defer span.End()
	return recon.BuildTable(obs, params)
}

func (r *Runner) price(ctx context.Context, table []models.ReconciliationRecord, price decimal.Decimal) ([]models.FiscalRecord, error) {
	_, span := r.tracer.Start(ctx, "pipeline.fiscal",
		trace.WithAttributes(attribute.String("price_gbp", price.String())))
	defer span.End()
	return fiscal.Apply(table, price)
}

func (r *Runner) audit(ctx context.Context, fieldName string, table []models.FiscalRecord, thresholdPct float64) ([]models.GovernanceFlag, error) {
	_, span := r.tracer.Start(ctx, "pipeline.governance",
		trace.WithAttributes(attribute.Float64("threshold_pct", thresholdPct)))
	defer span.End()
	_, bspan := r.business.TraceGovernanceScan(ctx, fieldName, thresholdPct)
	defer bspan.Finish()

	flags, err := r.auditor.Run(table, thresholdPct)
	if err != nil {
		return nil, err
	}
	r.business.RecordGovernanceOutcome(bspan, telemetry.GovernanceOutcome{
		FlagCount:       len(flags),
		HighestSeverity: string(highestSeverity(flags)),
		ThresholdPct:    thresholdPct,
		MonthsScanned:   len(table),
	})
	return flags, nil
}

func (r *Runner) sweep(ctx context.Context, fieldName string, table []models.ReconciliationRecord, prices []decimal.Decimal) ([]models.SweepResult, error) {
	_, span := r.tracer.Start(ctx, "pipeline.sweep",
		trace.WithAttributes(attribute.Int("scenarios.count", len(prices))))
	defer span.End()
	_, bspan := r.business.TraceSensitivitySweep(ctx, fieldName, len(prices))
	defer bspan.Finish()

	sweepStart := time.Now()
	results, err := fiscal.Sweep(table, prices)
	if err != nil {
		return nil, err
	}
	r.business.RecordSweepOutcome(bspan, telemetry.SweepOutcome{
		Scenarios: len(results),
		SweepTime: time.Since(sweepStart),
	})
	return results, nil
}

func highestSeverity(flags []models.GovernanceFlag) models.Severity {
	rank := map[models.Severity]int{
		models.SeverityLow:    1,
		models.SeverityMedium: 2,
		models.SeverityHigh:   3,
	}
	var top models.Severity
	for _, f := range flags {
		if rank[f.Severity] > rank[top] {
			top = f.Severity
		}
	}
	return top
}
