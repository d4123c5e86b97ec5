// Command api is the Scoracle Push API server.
//
// Usage:
//
//	scoracle-push
//	API_PORT=8080 scoracle-push

// @title Scoracle Push API
// @version 1.0.0
// @description Push notification targeting and delivery: device heartbeats, mute windows, preference toggles and secret-guarded class triggers.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Scoracle
// @license.name MIT
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
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

	"github.com/joho/godotenv"

	"github.com/albapepper/scoracle-push/internal/api"
	"github.com/albapepper/scoracle-push/internal/api/handler"
	"github.com/albapepper/scoracle-push/internal/config"
	"github.com/albapepper/scoracle-push/internal/db"
	"github.com/albapepper/scoracle-push/internal/devices"
	"github.com/albapepper/scoracle-push/internal/gateway"
	"github.com/albapepper/scoracle-push/internal/maintenance"
	"github.com/albapepper/scoracle-push/internal/metrics"
	"github.com/albapepper/scoracle-push/internal/migrations"
	"github.com/albapepper/scoracle-push/internal/notifications"
	"github.com/albapepper/scoracle-push/internal/scheduler"

	_ "github.com/albapepper/scoracle-push/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Schema first: prepared statements reference these tables.
	if cfg.MigrateOnStart {
		if err := migrations.Up(cfg.DatabaseURL, logger); err != nil {
			logger.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	metrics.Init()

	// Push gateway
	gw, err := gateway.New(ctx, gateway.Config{
		Provider:        cfg.PushProvider,
		ExpoURL:         cfg.ExpoPushURL,
		ExpoAccessToken: cfg.ExpoAccessToken,
		Timeout:         cfg.PushGatewayTimeout,
		RatePerSecond:   cfg.PushGatewayRPS,
		FCMCredentials:  cfg.FirebaseCredentialsFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to create push gateway", "error", err)
		os.Exit(1)
	}
	logger.Info("Push gateway ready", "provider", cfg.PushProvider)

	// Registry, engine, device service
	registry := devices.NewPostgresRegistry(pool)
	runs := notifications.NewRunStore(pool)
	engine := notifications.NewEngine(registry, gw, runs, logger)
	svc := devices.NewService(registry, logger)

	if cfg.TriggerSecret == "" {
		logger.Warn("NOTIFY_TRIGGER_SECRET is empty; trigger endpoints will reject every request",
			"production", cfg.IsProduction())
	}

	// Cron scheduler for self-triggered classes
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled && len(cfg.Schedules) > 0 {
		sched, err = scheduler.New(engine, cfg.Schedules, cfg.SchedulerTimezone, logger)
		if err != nil {
			logger.Error("Failed to configure scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
	} else {
		logger.Info("Scheduler disabled; runs are triggered externally")
	}

	// Maintenance tickers (mute sweep, run-log purge)
	go maintenance.Start(ctx, pool, maintenance.NewConfig(cfg.MaintenanceInterval, cfg.RunRetention), logger)

	// Create router
	h := handler.New(pool, engine, runs, svc, logger)
	router := api.NewRouter(h, cfg, logger)

	// Create HTTP server. WriteTimeout covers a full class run.
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Scoracle Push API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
