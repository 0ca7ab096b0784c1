package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/declinewatch/declinewatch-go/internal/services"
	"github.com/declinewatch/declinewatch-go/internal/telemetry"
)

var startTime = time.Now()

// HealthChecker is anything with a liveness probe. The postgres and redis
// wrappers both satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ResourceSampler exposes the last host resource snapshot. Satisfied by
// services.ResourceMonitor.
type ResourceSampler interface {
	Last() services.ResourceSnapshot
}

// HealthHandler reports service liveness plus host resource headroom.
type HealthHandler struct {
	db        HealthChecker
	redis     HealthChecker
	resources ResourceSampler
	notifier  interface{ Enabled() bool }
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Services  map[string]string          `json:"services"`
	Resources *services.ResourceSnapshot `json:"resources,omitempty"`
}

// NewHealthHandler creates the health handler. Any dependency may be nil,
// in which case it reports as not configured.
func NewHealthHandler(db, redis HealthChecker, resources ResourceSampler, notifier interface{ Enabled() bool }) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, resources: resources, notifier: notifier}
}

// HealthCheck handles GET /health. Degraded dependencies return 503 so the
// orchestrator recycles the pod instead of routing to it.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	svcs := make(map[string]string)

	probe := func(name string, checker HealthChecker) {
		if checker == nil {
			svcs[name] = "unhealthy: not configured"
			return
		}
		if err := checker.HealthCheck(ctx); err != nil {
			svcs[name] = "unhealthy: " + err.Error()
			return
		}
		svcs[name] = "healthy"
	}
	probe("database", h.db)
	probe("redis", h.redis)

	// Alerting is optional; report its state without degrading overall
	// health when it is simply not configured.
	if h.notifier != nil && h.notifier.Enabled() {
		svcs["telegram"] = "healthy"
	} else {
		svcs["telegram"] = "disabled"
	}

	status := "healthy"
	for name, state := range svcs {
		if name == "telegram" {
			continue
		}
		if state != "healthy" {
			status = "unhealthy"
			break
		}
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   telemetry.ServiceVersion,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Services:  svcs,
	}
	if h.resources != nil {
		snap := h.resources.Last()
		if !snap.Timestamp.IsZero() {
			resp.Resources = &snap
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
