// Package api assembles the HTTP router: middleware stack, health, metrics,
// docs, the notification trigger surface and the device endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/scoracle-push/internal/api/handler"
	"github.com/albapepper/scoracle-push/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(InstrumentMiddleware(logger))

	// CORS: any origin, preflight answered 200 with an empty body
	c := corslib.New(corslib.Options{
		AllowedOrigins:       cfg.CORSAllowOrigins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:       []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials:     false,
		OptionsSuccessStatus: http.StatusOK,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Trigger surface (shared secret)
		r.Route("/notifications", func(r chi.Router) {
			r.Use(SecretAuthMiddleware(cfg.TriggerSecret))
			r.Get("/classes", h.ListClasses)
			r.Get("/runs", h.ListRuns)
			r.Post("/{class}/run", h.TriggerClass)
		})

		// Client-facing device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Post("/heartbeat", h.Heartbeat)
			r.Post("/mute", h.Mute)
			r.Delete("/mute", h.Unmute)
			r.Get("/preferences", h.GetPreferences)
			r.Put("/preferences", h.SetPreferences)
			r.Post("/preferences", h.SetPreferences)
		})
	})

	return r
}
