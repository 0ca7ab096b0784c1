// Package api assembles the HTTP surface of the audit service.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/declinewatch/declinewatch-go/internal/api/handlers"
	"github.com/declinewatch/declinewatch-go/internal/middleware"
)

// SetupRoutes wires every endpoint. Reads are open; audit runs require a
// user token; ingest and cache management are operator-only.
func SetupRoutes(
	router *gin.Engine,
	audit *handlers.AuditHandler,
	export *handlers.ExportHandler,
	users *handlers.UserHandler,
	health *handlers.HealthHandler,
	auth *middleware.AuthMiddleware,
	admin *middleware.AdminMiddleware,
) {
	router.GET("/health", middleware.HealthCheckTelemetryMiddleware(), health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		userRoutes := v1.Group("/users")
		{
			userRoutes.POST("/register", users.RegisterUser)
			userRoutes.POST("/login", users.LoginUser)
			userRoutes.GET("/profile", auth.RequireAuth(), users.GetProfile)
		}

		fields := v1.Group("/fields")
		{
			fields.GET("", audit.ListFields)
			fields.POST("/:field/audit", auth.RequireAuth(), audit.RunAudit)

			// Read-only snapshots of the latest completed run.
			fields.GET("/:field/parameters", audit.GetParameters)
			fields.GET("/:field/reconciliation", audit.GetReconciliation)
			fields.GET("/:field/fiscal", audit.GetFiscal)
			fields.GET("/:field/flags", audit.GetFlags)
			fields.GET("/:field/summary", audit.GetSummary)
			fields.GET("/:field/sweep", audit.GetSweep)

			fields.GET("/:field/export/xlsx", export.ExportXLSX)
			fields.GET("/:field/export/pdf", export.ExportPDF)

			fields.DELETE("/:field/cache", admin.RequireAdminAuth(), audit.InvalidateCache)
		}

		ingest := v1.Group("/ingest", admin.RequireAdminAuth())
		{
			ingest.POST("/pprs", audit.IngestPPRS)
			ingest.POST("/synthetic", audit.IngestSynthetic)
		}
	}
}
