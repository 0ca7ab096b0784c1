package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/declinewatch/declinewatch-go/internal/api"
	"github.com/declinewatch/declinewatch-go/internal/api/handlers"
	"github.com/declinewatch/declinewatch-go/internal/cache"
	"github.com/declinewatch/declinewatch-go/internal/config"
	"github.com/declinewatch/declinewatch-go/internal/database"
	"github.com/declinewatch/declinewatch-go/internal/governance"
	"github.com/declinewatch/declinewatch-go/internal/logging"
	"github.com/declinewatch/declinewatch-go/internal/metrics"
	"github.com/declinewatch/declinewatch-go/internal/middleware"
	"github.com/declinewatch/declinewatch-go/internal/observability"
	"github.com/declinewatch/declinewatch-go/internal/services"
	"github.com/declinewatch/declinewatch-go/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := telemetry.InitTelemetry(telemetry.TelemetryConfig{
		Enabled:      cfg.Telemetry.Enabled,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	}); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Telemetry shutdown failed: %v\n", err)
		}
	}()

	if err := observability.InitSentry(cfg.Sentry, telemetry.ServiceVersion, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Sentry init failed, continuing without: %v\n", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		observability.Flush(ctx)
	}()

	logger := logrus.New()
	logger.SetLevel(logging.ParseLogrusLevel(cfg.LogLevel))
	if cfg.Environment != "development" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Structured records follow the traces: same collector endpoint when
	// one is configured, stdout JSON otherwise.
	var stdLogger *logging.StandardLogger
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "" {
		stdLogger = logging.NewStandardOTLPLogger(logging.OTLPConfig{
			Enabled:        true,
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    telemetry.ServiceName,
			ServiceVersion: telemetry.ServiceVersion,
			Environment:    cfg.Environment,
			LogLevel:       cfg.LogLevel,
		})
	} else {
		stdLogger = logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	}
	metrics.Init()

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redis.Close()

	policy, err := governance.LoadPolicy(cfg.Audit.PolicyFile)
	if err != nil {
		return fmt.Errorf("load governance policy: %w", err)
	}

	cacheTTL, _ := time.ParseDuration(cfg.Audit.CacheTTL)
	fitCache := cache.NewRedisFitCache(redis.Client, cacheTTL)

	repo := database.NewProductionRepository(database.NewTracedPool(db.Pool))
	auditService := services.NewAuditService(repo, fitCache, policy, cfg.Audit.TrendPeriod, logger)

	notifier := services.NewNotifierService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	scheduleInterval, _ := time.ParseDuration(cfg.Audit.ScheduleInterval)
	scheduler := services.NewSchedulerService(auditService, notifier, scheduleInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	monitor := services.NewResourceMonitor(5*time.Minute, stdLogger)
	monitor.Start()
	defer monitor.Stop()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(telemetry.ServiceName))
	router.Use(middleware.TelemetryMiddleware())

	auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecret)
	admin := middleware.NewAdminMiddleware()
	tokenTTL, _ := time.ParseDuration(cfg.Security.JWTExpiry)

	store := handlers.NewResultStore()
	api.SetupRoutes(router,
		handlers.NewAuditHandler(auditService, store, logger),
		handlers.NewExportHandler(store, logger),
		handlers.NewUserHandler(db.Pool, auth, tokenTTL, cfg.Security.BcryptCost, logger),
		handlers.NewHealthHandler(db, redis, monitor, notifier),
		auth,
		admin,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	go func() {
		stdLogger.LogStartup(telemetry.ServiceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stdLogger.LogShutdown(telemetry.ServiceName, "signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}
