// Package services hosts the audit orchestration layer: the audit service
// itself, the scheduler that re-runs the portfolio, the Telegram notifier
// for high-severity findings, and the resource monitor.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/declinewatch/declinewatch-go/internal/decline"
	"github.com/declinewatch/declinewatch-go/internal/governance"
	"github.com/declinewatch/declinewatch-go/internal/ingest"
	"github.com/declinewatch/declinewatch-go/internal/models"
	"github.com/declinewatch/declinewatch-go/internal/observability"
	"github.com/declinewatch/declinewatch-go/internal/pipeline"
)

// ErrNoObservations reports an audit request for a field with no stored
// production series.
var ErrNoObservations = errors.New("no production observations for field")

// ProductionStore is the slice of the production repository the audit
// service consumes.
type ProductionStore interface {
	UpsertObservations(ctx context.Context, fieldName string, obs []models.ProductionObservation) (int64, error)
	GetFieldSeries(ctx context.Context, fieldName string) ([]models.ProductionObservation, error)
	ListFields(ctx context.Context) ([]string, error)
	CountObservations(ctx context.Context, fieldName string) (int, error)
}

// FitCache caches fitted decline models keyed by field and series content.
// A nil cache disables caching entirely.
type FitCache interface {
	Get(ctx context.Context, fieldName string, obs []models.ProductionObservation) (models.DeclineModelParameters, bool)
	Set(ctx context.Context, fieldName string, obs []models.ProductionObservation, params models.DeclineModelParameters)
	Invalidate(ctx context.Context, fieldName string) error
}

// AuditOptions carries per-request overrides on top of the field's
// governance policy. Zero values inherit the policy.
type AuditOptions struct {
	PricePerBarrel float64
	ThresholdPct   float64
	SweepPrices    []float64
	TrendPeriod    int
	SkipCache      bool
}

// IngestReport summarises one ingest: the fields touched and the rows
// written across all of them.
type IngestReport struct {
	Fields       []string `json:"fields"`
	Observations int64    `json:"observations_written"`
}

// FieldInfo describes one stored field for the listing endpoint.
type FieldInfo struct {
	FieldName    string `json:"field_name"`
	Observations int    `json:"observations"`
}

// AuditService loads production series, applies governance policy and runs
// the audit pipeline. Audit outputs are never persisted; every run
// recomputes from the stored observations, with the fit cache shortening
// repeat runs over an unchanged series.
type AuditService struct {
	store       ProductionStore
	cache       FitCache
	runner      *pipeline.Runner
	policy      governance.PolicyConfig
	trendPeriod int
	logger      *logrus.Logger
}

// NewAuditService builds the audit service. trendPeriod <= 0 falls back to
// the pipeline default.
func NewAuditService(store ProductionStore, fitCache FitCache, policy governance.PolicyConfig, trendPeriod int, logger *logrus.Logger) *AuditService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AuditService{
		store:       store,
		cache:       fitCache,
		runner:      pipeline.NewRunner(logger, nil),
		policy:      policy,
		trendPeriod: trendPeriod,
		logger:      logger,
	}
}

// AuditField runs one complete audit for a field. Request overrides win
// over the field's governance policy; the policy fills whatever the
// request leaves unset.
func (s *AuditService) AuditField(ctx context.Context, fieldName string, opts AuditOptions) (*pipeline.Result, error) {
	obs, err := s.store.GetFieldSeries(ctx, fieldName)
	if err != nil {
		observability.CaptureException(ctx, err)
		return nil, fmt.Errorf("load production series: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoObservations, fieldName)
	}

	runOpts := s.runOptions(fieldName, opts)

	cached := false
	if s.cache != nil && !opts.SkipCache {
		if params, ok := s.cache.Get(ctx, fieldName, obs); ok {
			runOpts.Parameters = &params
			cached = true
		}
	}

	result, err := s.runner.Run(ctx, fieldName, obs, runOpts)
	if err != nil {
		// Fit failures on thin or erratic series are expected outcomes of
		// auditing real data, not incidents.
		if !isDataError(err) {
			observability.CaptureException(ctx, err)
		}
		return nil, err
	}

	if s.cache != nil && !cached && result.Parameters.Converged {
		s.cache.Set(ctx, fieldName, obs, result.Parameters)
	}

	return result, nil
}

// AuditAll audits every stored field under its governance policy and
// returns the summaries in field order. A field that fails to audit is
// logged and skipped so one bad series cannot sink a portfolio run.
func (s *AuditService) AuditAll(ctx context.Context) ([]models.FiscalSummary, error) {
	fields, err := s.store.ListFields(ctx)
	if err != nil {
		observability.CaptureException(ctx, err)
		return nil, fmt.Errorf("list fields: %w", err)
	}

	summaries := make([]models.FiscalSummary, 0, len(fields))
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		result, err := s.AuditField(ctx, field, AuditOptions{})
		if err != nil {
			s.logger.WithError(err).WithField("field", field).Warn("Portfolio audit skipped field")
			continue
		}
		summaries = append(summaries, result.Summary)
	}
	return summaries, nil
}

// Fields lists stored fields with their observation counts.
func (s *AuditService) Fields(ctx context.Context) ([]FieldInfo, error) {
	names, err := s.store.ListFields(ctx)
	if err != nil {
		observability.CaptureException(ctx, err)
		return nil, fmt.Errorf("list fields: %w", err)
	}

	out := make([]FieldInfo, 0, len(names))
	for _, name := range names {
		count, err := s.store.CountObservations(ctx, name)
		if err != nil {
			observability.CaptureException(ctx, err)
			return nil, fmt.Errorf("count observations for %q: %w", name, err)
		}
		out = append(out, FieldInfo{FieldName: name, Observations: count})
	}
	return out, nil
}

// IngestCSV parses a PPRS export and upserts every field's series,
// invalidating cached fits for the fields touched.
func (s *AuditService) IngestCSV(ctx context.Context, r io.Reader) (*IngestReport, error) {
	series, err := ingest.ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return s.storeSeries(ctx, series)
}

// IngestSynthetic generates a deterministic synthetic field and stores it.
// Operators use this to rehearse governance review without waiting on an
// NSTA release.
func (s *AuditService) IngestSynthetic(ctx context.Context, fieldName string, months int, seed int64) (*IngestReport, error) {
	fs := ingest.SyntheticField(fieldName, months, seed)
	return s.storeSeries(ctx, []ingest.FieldSeries{fs})
}

// InvalidateField drops any cached fit for the field.
func (s *AuditService) InvalidateField(ctx context.Context, fieldName string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, fieldName)
}

func (s *AuditService) storeSeries(ctx context.Context, series []ingest.FieldSeries) (*IngestReport, error) {
	report := &IngestReport{Fields: make([]string, 0, len(series))}
	for _, fs := range series {
		written, err := s.store.UpsertObservations(ctx, fs.FieldName, fs.Observations)
		if err != nil {
			observability.CaptureException(ctx, err)
			return nil, fmt.Errorf("store series for %q: %w", fs.FieldName, err)
		}
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, fs.FieldName); err != nil {
				s.logger.WithError(err).WithField("field", fs.FieldName).Warn("Fit cache invalidation failed")
			}
		}
		report.Fields = append(report.Fields, fs.FieldName)
		report.Observations += written

		s.logger.WithFields(logrus.Fields{
			"field": fs.FieldName,
			"rows":  written,
		}).Info("Production series ingested")
	}
	return report, nil
}

// runOptions resolves the effective run parameters: request overrides over
// the field policy over the built-in defaults.
func (s *AuditService) runOptions(fieldName string, opts AuditOptions) pipeline.RunOptions {
	p := s.policy.PolicyFor(fieldName)

	price := p.PricePerBarrel
	if opts.PricePerBarrel > 0 {
		price = opts.PricePerBarrel
	}
	threshold := p.ThresholdPct
	if opts.ThresholdPct > 0 {
		threshold = opts.ThresholdPct
	}
	sweep := p.SweepPrices
	if len(opts.SweepPrices) > 0 {
		sweep = opts.SweepPrices
	}
	trend := s.trendPeriod
	if opts.TrendPeriod > 0 {
		trend = opts.TrendPeriod
	}

	out := pipeline.RunOptions{
		ThresholdPct: threshold,
		TrendPeriod:  trend,
	}
	if price > 0 {
		out.PricePerBarrel = decimal.NewFromFloat(price)
	}
	for _, sp := range sweep {
		out.SweepPrices = append(out.SweepPrices, decimal.NewFromFloat(sp))
	}
	return out
}

// isDataError reports whether err is a property of the audited data rather
// than of the service.
func isDataError(err error) bool {
	return errors.Is(err, decline.ErrInsufficientData) ||
		errors.Is(err, decline.ErrFitDiverged) ||
		errors.Is(err, models.ErrEmptySeries)
}
