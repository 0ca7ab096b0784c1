package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declinewatch/declinewatch-go/internal/cache"
	"github.com/declinewatch/declinewatch-go/internal/database"
	"github.com/declinewatch/declinewatch-go/internal/decline"
	"github.com/declinewatch/declinewatch-go/internal/governance"
	"github.com/declinewatch/declinewatch-go/internal/models"
)

// The production implementations must keep satisfying the service-side
// interfaces.
var (
	_ ProductionStore = (*database.ProductionRepository)(nil)
	_ FitCache        = (*cache.RedisFitCache)(nil)
)

// fakeStore is an in-memory ProductionStore.
type fakeStore struct {
	mu     sync.Mutex
	series map[string][]models.ProductionObservation
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{series: make(map[string][]models.ProductionObservation)}
}

func (f *fakeStore) UpsertObservations(_ context.Context, fieldName string, obs []models.ProductionObservation) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[fieldName] = append([]models.ProductionObservation(nil), obs...)
	return int64(len(obs)), nil
}

func (f *fakeStore) GetFieldSeries(_ context.Context, fieldName string) ([]models.ProductionObservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProductionObservation(nil), f.series[fieldName]...), nil
}

func (f *fakeStore) ListFields(_ context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.series))
	for name := range f.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) CountObservations(_ context.Context, fieldName string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.series[fieldName]), nil
}

// fakeFitCache records cache traffic so tests can assert on hit and
// refresh behaviour.
type fakeFitCache struct {
	mu          sync.Mutex
	entries     map[string]models.DeclineModelParameters
	gets        int
	hits        int
	sets        int
	invalidated []string
}

func newFakeFitCache() *fakeFitCache {
	return &fakeFitCache{entries: make(map[string]models.DeclineModelParameters)}
}

func (f *fakeFitCache) Get(_ context.Context, fieldName string, _ []models.ProductionObservation) (models.DeclineModelParameters, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	params, ok := f.entries[fieldName]
	if ok {
		f.hits++
	}
	return params, ok
}

func (f *fakeFitCache) Set(_ context.Context, fieldName string, _ []models.ProductionObservation, params models.DeclineModelParameters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[fieldName] = params
}

func (f *fakeFitCache) Invalidate(_ context.Context, fieldName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, fieldName)
	delete(f.entries, fieldName)
	return nil
}

// declineSeries builds a clean exponential decline the fitter converges on
// without noise getting in the way.
func declineSeries(months int) []models.ProductionObservation {
	obs := make([]models.ProductionObservation, months)
	for t := 0; t < months; t++ {
		obs[t] = models.ProductionObservation{
			Period:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, t, 0),
			ActualBOE: 50000 * math.Exp(-0.03*float64(t)),
		}
	}
	return obs
}

func testPolicy(t *testing.T) governance.PolicyConfig {
	t.Helper()
	policy, err := governance.LoadPolicy("")
	require.NoError(t, err)
	return policy
}

func TestAuditService_AuditField(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	fitCache := newFakeFitCache()
	svc := NewAuditService(store, fitCache, testPolicy(t), 0, logrus.New())

	result, err := svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{})
	require.NoError(t, err)

	assert.Equal(t, "BRENT ALPHA", result.FieldName)
	assert.True(t, result.Parameters.Converged)
	assert.Len(t, result.Reconciliation, 24)
	assert.Equal(t, 24, result.Summary.MonthsAnalysed)
	assert.Equal(t, 1, fitCache.sets, "converged fit should be cached")

	// Second run over the same series reuses the cached model.
	again, err := svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, fitCache.hits)
	assert.Equal(t, 1, fitCache.sets, "cache hit must not rewrite the entry")
	assert.InDelta(t, result.Parameters.Qi, again.Parameters.Qi, 1e-9)
	assert.InDelta(t, result.Parameters.Di, again.Parameters.Di, 1e-9)
}

func TestAuditService_AuditField_SkipCache(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	fitCache := newFakeFitCache()
	svc := NewAuditService(store, fitCache, testPolicy(t), 0, logrus.New())

	for i := 0; i < 2; i++ {
		_, err := svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{SkipCache: true})
		require.NoError(t, err)
	}

	assert.Equal(t, 0, fitCache.gets, "SkipCache must bypass the read path")
	assert.Equal(t, 2, fitCache.sets, "each forced refit still refreshes the cache")
}

func TestAuditService_AuditField_NilCache(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	svc := NewAuditService(store, nil, testPolicy(t), 0, logrus.New())

	result, err := svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{})
	require.NoError(t, err)
	assert.True(t, result.Parameters.Converged)
}

func TestAuditService_AuditField_NoObservations(t *testing.T) {
	svc := NewAuditService(newFakeStore(), nil, testPolicy(t), 0, logrus.New())

	_, err := svc.AuditField(context.Background(), "GHOST FIELD", AuditOptions{})
	assert.ErrorIs(t, err, ErrNoObservations)
	assert.Contains(t, err.Error(), "GHOST FIELD")
}

func TestAuditService_AuditField_InsufficientData(t *testing.T) {
	store := newFakeStore()
	store.series["THIN"] = declineSeries(2)
	fitCache := newFakeFitCache()
	svc := NewAuditService(store, fitCache, testPolicy(t), 0, logrus.New())

	_, err := svc.AuditField(context.Background(), "THIN", AuditOptions{})
	assert.ErrorIs(t, err, decline.ErrInsufficientData)
	assert.Equal(t, 0, fitCache.sets, "failed fits must not be cached")
}

func TestAuditService_AuditField_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	svc := NewAuditService(store, nil, testPolicy(t), 0, logrus.New())

	_, err := svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load production series")
}

func TestAuditService_AuditField_PolicyOverrides(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	policy := governance.PolicyConfig{
		Defaults: governance.Policy{ThresholdPct: 10, PricePerBarrel: 65},
		Fields: map[string]governance.Policy{
			"BRENT ALPHA": {ThresholdPct: 2, PricePerBarrel: 80},
		},
	}
	svc := NewAuditService(store, nil, policy, 0, logrus.New())

	result, err := svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Summary.ThresholdPct)
	assert.True(t, result.Summary.PricePerBarrel.Equal(decimal.NewFromInt(80)),
		"expected policy price 80, got %s", result.Summary.PricePerBarrel)

	// Request options beat the field policy.
	result, err = svc.AuditField(context.Background(), "BRENT ALPHA", AuditOptions{
		ThresholdPct:   50,
		PricePerBarrel: 72.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Summary.ThresholdPct)
	assert.True(t, result.Summary.PricePerBarrel.Equal(decimal.NewFromFloat(72.5)))
}

func TestAuditService_AuditAll(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	store.series["FORTIES BRAVO"] = declineSeries(18)
	store.series["THIN"] = declineSeries(2)
	svc := NewAuditService(store, newFakeFitCache(), testPolicy(t), 0, logrus.New())

	summaries, err := svc.AuditAll(context.Background())
	require.NoError(t, err)

	// THIN cannot be fitted and is skipped rather than failing the run.
	require.Len(t, summaries, 2)
	assert.Equal(t, "BRENT ALPHA", summaries[0].FieldName)
	assert.Equal(t, "FORTIES BRAVO", summaries[1].FieldName)
}

func TestAuditService_AuditAll_ContextCancelled(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	svc := NewAuditService(store, nil, testPolicy(t), 0, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.AuditAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuditService_Fields(t *testing.T) {
	store := newFakeStore()
	store.series["BRENT ALPHA"] = declineSeries(24)
	store.series["FORTIES BRAVO"] = declineSeries(6)
	svc := NewAuditService(store, nil, testPolicy(t), 0, logrus.New())

	fields, err := svc.Fields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, FieldInfo{FieldName: "BRENT ALPHA", Observations: 24}, fields[0])
	assert.Equal(t, FieldInfo{FieldName: "FORTIES BRAVO", Observations: 6}, fields[1])
}

func TestAuditService_IngestCSV(t *testing.T) {
	csv := strings.Join([]string{
		"reportingUnitName,productionMonth,oilProduction,gasProduction",
		"BRENT ALPHA,2021-03-01,1200.5,340.2",
		"BRENT ALPHA,2021-04-01,1150.0,322.9",
		"FORTIES BRAVO,2021-03-01,900.0,120.0",
	}, "\n")

	store := newFakeStore()
	fitCache := newFakeFitCache()
	svc := NewAuditService(store, fitCache, testPolicy(t), 0, logrus.New())

	report, err := svc.IngestCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	// Reporting unit names are stored under their canonical snake key.
	assert.Equal(t, []string{"brent_alpha", "forties_bravo"}, report.Fields)
	assert.Equal(t, int64(3), report.Observations)
	assert.Len(t, store.series["brent_alpha"], 2)
	assert.Len(t, store.series["forties_bravo"], 1)
	assert.ElementsMatch(t, []string{"brent_alpha", "forties_bravo"}, fitCache.invalidated,
		"every ingested field must drop its cached fit")
}

func TestAuditService_IngestCSV_Malformed(t *testing.T) {
	svc := NewAuditService(newFakeStore(), nil, testPolicy(t), 0, logrus.New())

	_, err := svc.IngestCSV(context.Background(), strings.NewReader("not,a\npprs,export"))
	assert.Error(t, err)
}

func TestAuditService_IngestSynthetic(t *testing.T) {
	store := newFakeStore()
	svc := NewAuditService(store, newFakeFitCache(), testPolicy(t), 0, logrus.New())

	report, err := svc.IngestSynthetic(context.Background(), "REHEARSAL", 24, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"rehearsal"}, report.Fields)
	assert.Equal(t, int64(24), report.Observations)

	// The generated series must be auditable end to end.
	result, err := svc.AuditField(context.Background(), "rehearsal", AuditOptions{})
	require.NoError(t, err)
	assert.True(t, result.Parameters.Converged)
	assert.Equal(t, 24, result.Summary.MonthsAnalysed)
}

func TestAuditService_InvalidateField(t *testing.T) {
	fitCache := newFakeFitCache()
	svc := NewAuditService(newFakeStore(), fitCache, testPolicy(t), 0, logrus.New())

	require.NoError(t, svc.InvalidateField(context.Background(), "BRENT ALPHA"))
	assert.Equal(t, []string{"BRENT ALPHA"}, fitCache.invalidated)

	// A service without a cache treats invalidation as a no-op.
	bare := NewAuditService(newFakeStore(), nil, testPolicy(t), 0, logrus.New())
	assert.NoError(t, bare.InvalidateField(context.Background(), "BRENT ALPHA"))
}
