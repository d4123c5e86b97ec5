// Package handler provides HTTP handlers for all API endpoints. Device
// writes go through devices.Service; notification triggers go through the
// dispatch engine.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-push/internal/api/respond"
	"github.com/albapepper/scoracle-push/internal/devices"
	appErr "github.com/albapepper/scoracle-push/internal/errors"
	"github.com/albapepper/scoracle-push/internal/notifications"
)

// maxBodyBytes bounds request bodies for every JSON endpoint.
const maxBodyBytes = 64 << 10

// HealthChecker is satisfied by *db.Pool.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Runner is satisfied by *notifications.Engine.
type Runner interface {
	RunByName(ctx context.Context, name string, params notifications.RunParams) (notifications.Outcome, error)
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db      HealthChecker
	engine  Runner
	runs    notifications.RunRecorder
	devices *devices.Service
	logger  *slog.Logger
}

// New creates a Handler with shared dependencies. db and runs may be nil.
func New(db HealthChecker, engine Runner, runs notifications.RunRecorder, svc *devices.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:      db,
		engine:  engine,
		runs:    runs,
		devices: svc,
		logger:  logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and the docs location.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Scoracle Push API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.HealthCheck(r.Context()) != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeBody reads a JSON object into dst. An empty body leaves dst
// untouched when optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return appErr.Validation("request body is required")
		}
		return appErr.Validation("malformed JSON body")
	}
	return nil
}
