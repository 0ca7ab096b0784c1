// Package handlers implements the HTTP boundary of the audit service. The
// presentation layer consumes read-only snapshots of the core's outputs;
// nothing here mutates an audit result after the pipeline produced it.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/declinewatch/declinewatch-go/internal/decline"
	"github.com/declinewatch/declinewatch-go/internal/fiscal"
	"github.com/declinewatch/declinewatch-go/internal/governance"
	"github.com/declinewatch/declinewatch-go/internal/models"
	"github.com/declinewatch/declinewatch-go/internal/pipeline"
	"github.com/declinewatch/declinewatch-go/internal/services"
)

// maxIngestBytes caps an uploaded PPRS extract. A full UKCS monthly
// release is a few MB; 32MB leaves headroom for multi-year exports.
const maxIngestBytes = 32 << 20

// AuditRunner is the slice of the audit service the HTTP layer consumes.
type AuditRunner interface {
	AuditField(ctx context.Context, fieldName string, opts services.AuditOptions) (*pipeline.Result, error)
	Fields(ctx context.Context) ([]services.FieldInfo, error)
	IngestCSV(ctx context.Context, r io.Reader) (*services.IngestReport, error)
	IngestSynthetic(ctx context.Context, fieldName string, months int, seed int64) (*services.IngestReport, error)
	InvalidateField(ctx context.Context, fieldName string) error
}

// ResultStore keeps the latest audit run per field so the snapshot
// endpoints can serve without recomputing. Results are replaced whole,
// never mutated in place.
type ResultStore struct {
	mu      sync.RWMutex
	byField map[string]*pipeline.Result
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{byField: make(map[string]*pipeline.Result)}
}

// Put replaces the stored result for a field.
func (s *ResultStore) Put(result *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byField[result.FieldName] = result
}

// Get returns the latest result for a field, if any run has completed.
func (s *ResultStore) Get(fieldName string) (*pipeline.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byField[fieldName]
	return r, ok
}

// Drop forgets the stored result for a field.
func (s *ResultStore) Drop(fieldName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byField, fieldName)
}

// AuditHandler serves audit runs, the read-only snapshot endpoints and
// production data ingest.
type AuditHandler struct {
	auditor AuditRunner
	store   *ResultStore
	logger  *logrus.Logger
}

// NewAuditHandler creates an audit handler backed by the given service and
// snapshot store.
func NewAuditHandler(auditor AuditRunner, store *ResultStore, logger *logrus.Logger) *AuditHandler {
	if logger == nil {
		logger = logrus.New()
	}
	if store == nil {
		store = NewResultStore()
	}
	return &AuditHandler{auditor: auditor, store: store, logger: logger}
}

// AuditRequest carries per-run overrides. Every field is optional; omitted
// values fall back to the field's governance policy.
type AuditRequest struct {
	PricePerBarrel float64   `json:"price_per_barrel_gbp"`
	ThresholdPct   float64   `json:"threshold_pct"`
	SweepPrices    []float64 `json:"sweep_prices_gbp"`
	TrendPeriod    int       `json:"trend_period"`
	SkipCache      bool      `json:"skip_cache"`
}

// AuditResponse is the POST /audit payload: the run identity plus the
// summary. The full tables stay behind the snapshot endpoints.
type AuditResponse struct {
	RunID     string               `json:"run_id"`
	FieldName string               `json:"field_name"`
	Summary   models.FiscalSummary `json:"summary"`
	ElapsedMS int64                `json:"elapsed_ms"`
}

// RunAudit handles POST /fields/:field/audit.
func (h *AuditHandler) RunAudit(c *gin.Context) {
	fieldName := c.Param("field")

	var req AuditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	if req.PricePerBarrel < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_per_barrel_gbp must be positive"})
		return
	}
	if req.ThresholdPct < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold_pct must be positive"})
		return
	}

	result, err := h.auditor.AuditField(c.Request.Context(), fieldName, services.AuditOptions{
		PricePerBarrel: req.PricePerBarrel,
		ThresholdPct:   req.ThresholdPct,
		SweepPrices:    req.SweepPrices,
		TrendPeriod:    req.TrendPeriod,
		SkipCache:      req.SkipCache,
	})
	if err != nil {
		h.auditError(c, fieldName, err)
		return
	}

	h.store.Put(result)
	c.JSON(http.StatusOK, AuditResponse{
		RunID:     result.RunID.String(),
		FieldName: result.FieldName,
		Summary:   result.Summary,
		ElapsedMS: result.Elapsed.Milliseconds(),
	})
}

// ListFields handles GET /fields.
func (h *AuditHandler) ListFields(c *gin.Context) {
	fields, err := h.auditor.Fields(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Field listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list fields"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields, "count": len(fields)})
}

// GetParameters handles GET /fields/:field/parameters.
func (h *AuditHandler) GetParameters(c *gin.Context) {
	result, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     result.RunID.String(),
		"field_name": result.FieldName,
		"parameters": result.Parameters,
	})
}

// GetReconciliation handles GET /fields/:field/reconciliation.
func (h *AuditHandler) GetReconciliation(c *gin.Context) {
	result, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":             result.RunID.String(),
		"field_name":         result.FieldName,
		"reconciliation":     result.Reconciliation,
		"variance_trend_pct": result.VarianceTrend,
	})
}

// GetFiscal handles GET /fields/:field/fiscal.
func (h *AuditHandler) GetFiscal(c *gin.Context) {
	result, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     result.RunID.String(),
		"field_name": result.FieldName,
		"fiscal":     result.Fiscal,
	})
}

// GetFlags handles GET /fields/:field/flags.
func (h *AuditHandler) GetFlags(c *gin.Context) {
	result, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     result.RunID.String(),
		"field_name": result.FieldName,
		"flags":      result.Flags,
		"count":      len(result.Flags),
	})
}

// GetSummary handles GET /fields/:field/summary.
func (h *AuditHandler) GetSummary(c *gin.Context) {
	result, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result.Summary)
}

// GetSweep handles GET /fields/:field/sweep.
func (h *AuditHandler) GetSweep(c *gin.Context) {
	result, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     result.RunID.String(),
		"field_name": result.FieldName,
		"sweep":      result.Sweep,
	})
}

// IngestPPRS handles POST /ingest/pprs. The body is a raw PPRS CSV export.
func (h *AuditHandler) IngestPPRS(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBytes)
	report, err := h.auditor.IngestCSV(c.Request.Context(), body)
	if err != nil {
		h.logger.WithError(err).Warn("PPRS ingest rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, field := range report.Fields {
		h.store.Drop(field)
	}
	c.JSON(http.StatusOK, report)
}

// SyntheticRequest describes a synthetic field generation request.
type SyntheticRequest struct {
	FieldName string `json:"field_name" binding:"required"`
	Months    int    `json:"months"`
	Seed      int64  `json:"seed"`
}

// IngestSynthetic handles POST /ingest/synthetic.
func (h *AuditHandler) IngestSynthetic(c *gin.Context) {
	var req SyntheticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	report, err := h.auditor.IngestSynthetic(c.Request.Context(), req.FieldName, req.Months, req.Seed)
	if err != nil {
		h.logger.WithError(err).Error("Synthetic ingest failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store synthetic series"})
		return
	}
	h.store.Drop(req.FieldName)
	c.JSON(http.StatusOK, report)
}

// InvalidateCache handles DELETE /fields/:field/cache, dropping both the
// memoized fit and the stored snapshot.
func (h *AuditHandler) InvalidateCache(c *gin.Context) {
	fieldName := c.Param("field")
	if err := h.auditor.InvalidateField(c.Request.Context(), fieldName); err != nil {
		h.logger.WithError(err).WithField("field", fieldName).Error("Cache invalidation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invalidate cache"})
		return
	}
	h.store.Drop(fieldName)
	c.JSON(http.StatusOK, gin.H{"field_name": fieldName, "invalidated": true})
}

// latest fetches the stored snapshot for the :field param, writing the 404
// itself when no run exists yet.
func (h *AuditHandler) latest(c *gin.Context) (*pipeline.Result, bool) {
	fieldName := c.Param("field")
	result, ok := h.store.Get(fieldName)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No audit run for field, POST /fields/" + fieldName + "/audit first",
		})
		return nil, false
	}
	return result, true
}

// auditError maps pipeline failures onto HTTP statuses: data problems are
// the caller's to fix, everything else is ours.
func (h *AuditHandler) auditError(c *gin.Context, fieldName string, err error) {
	log := h.logger.WithError(err).WithField("field", fieldName)
	switch {
	case errors.Is(err, services.ErrNoObservations):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, decline.ErrInsufficientData):
		log.Warn("Audit rejected, too few producing months")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, decline.ErrFitDiverged):
		log.Warn("Audit rejected, decline fit did not converge")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, fiscal.ErrInvalidPrice), errors.Is(err, governance.ErrInvalidThreshold):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrEmptySeries):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Error("Audit run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Audit run failed"})
	}
}
