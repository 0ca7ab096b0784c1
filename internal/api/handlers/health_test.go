package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declinewatch/declinewatch-go/internal/services"
)

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

type stubSampler struct{ snap services.ResourceSnapshot }

func (s stubSampler) Last() services.ResourceSnapshot { return s.snap }

type stubNotifier struct{ enabled bool }

func (s stubNotifier) Enabled() bool { return s.enabled }

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.HealthCheck)
	return r
}

func TestHealthCheckAllHealthy(t *testing.T) {
	sampler := stubSampler{snap: services.ResourceSnapshot{
		Timestamp:  time.Now(),
		CPUPercent: 12.5,
		Goroutines: 42,
	}}
	h := NewHealthHandler(stubChecker{}, stubChecker{}, sampler, stubNotifier{enabled: true})
	router := healthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["database"])
	assert.Equal(t, "healthy", resp.Services["redis"])
	assert.Equal(t, "healthy", resp.Services["telegram"])
	require.NotNil(t, resp.Resources)
	assert.Equal(t, 42, resp.Resources.Goroutines)
}

func TestHealthCheckDegradedDatabase(t *testing.T) {
	h := NewHealthHandler(stubChecker{err: errors.New("connection refused")}, stubChecker{}, nil, nil)
	router := healthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Services["database"], "connection refused")
}

func TestHealthCheckDisabledNotifierDoesNotDegrade(t *testing.T) {
	h := NewHealthHandler(stubChecker{}, stubChecker{}, nil, stubNotifier{enabled: false})
	router := healthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "disabled", resp.Services["telegram"])
}

func TestHealthCheckNotConfigured(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil, nil)
	router := healthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
