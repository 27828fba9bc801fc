package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/handlers"
	"whoop-sync/internal/metrics"
	"whoop-sync/internal/middleware"
	"whoop-sync/internal/oauth"
	"whoop-sync/internal/reconcile"
	"whoop-sync/internal/webhook"
	"whoop-sync/internal/whoop"
	"whoop-sync/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting whoop-sync server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel)

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	// Create WHOOP client and core services
	whoopClient := whoop.NewClient(cfg)
	oauthManager := oauth.NewManager(cfg, db, whoopClient)
	reconciler := reconcile.NewReconciler(db)
	processor := webhook.NewProcessor(cfg, db, whoopClient, oauthManager, reconciler)

	// Create handlers
	oauthHandler := handlers.NewOAuthHandler(oauthManager, db, cfg)
	webhookHandler := handlers.NewWebhookHandler(processor)
	syncHandler := handlers.NewSyncHandler(db, cfg, whoopClient, oauthManager, reconciler)
	athletesHandler := handlers.NewAthletesHandler(db, cfg)
	eventsHandler := handlers.NewEventsHandler(db, cfg)

	// Set up HTTP routes
	mux := http.NewServeMux()

	// OAuth endpoints
	mux.Handle("/oauth-start", middleware.WrapHandler(metrics.EndpointOAuthStart, oauthHandler.HandleAuthStart))
	mux.Handle("/oauth-callback", middleware.WrapHandler(metrics.EndpointOAuthCallback, oauthHandler.HandleCallback))

	// Webhook endpoint
	mux.Handle("/whoop/webhook", middleware.WrapHandler(metrics.EndpointWebhook, webhookHandler.HandleWebhook))

	// Pull-sync API endpoints
	mux.Handle("/api/cycles", middleware.WrapHandler(metrics.EndpointCycles, syncHandler.HandleCycles))
	mux.Handle("/api/sleep", middleware.WrapHandler(metrics.EndpointSleep, syncHandler.HandleSleep))
	mux.Handle("/api/sleep/latest", middleware.WrapHandler(metrics.EndpointSleep, syncHandler.HandleSleepLatest))
	mux.Handle("/api/recovery", middleware.WrapHandler(metrics.EndpointRecovery, syncHandler.HandleRecovery))
	mux.Handle("/api/workouts", middleware.WrapHandler(metrics.EndpointWorkouts, syncHandler.HandleWorkouts))
	mux.Handle("/api/days", middleware.WrapHandler(metrics.EndpointDays, syncHandler.HandleDays))

	// Athlete provisioning endpoints
	mux.Handle("/api/athletes", middleware.WrapHandler(metrics.EndpointAthletes, athletesHandler.HandleAthletes))
	mux.Handle("/api/athletes/{id}/weight-cutting", middleware.WrapHandler(metrics.EndpointAthletes, athletesHandler.HandleWeightCutting))

	// Webhook audit log endpoint
	mux.Handle("/api/webhook-events", middleware.WrapHandler(metrics.EndpointWebhook, eventsHandler.HandleEvents))

	// Health check endpoint
	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(); err != nil {
			logger.Error("Health check failed", "error", err)
			http.Error(w, "Unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  35 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start sync job worker in background
	workerInstance := worker.NewWorker(db, whoopClient, oauthManager, reconciler, cfg)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go func() {
		logger.Info("Starting sync worker")
		if err := workerInstance.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Sync worker failed", "error", err)
		}
	}()

	// Start queue depth collector if metrics are enabled
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting queue depth collector")
			metrics.StartQueueDepthCollector(workerCtx, db, 15*time.Second)
		}()
	}

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	// Stop worker
	workerCancel()

	// Shutdown HTTP servers with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
