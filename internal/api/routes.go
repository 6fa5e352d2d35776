package api

import (
	"net/http"
	"time"

	"voicedesk/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)
	r.Use(LoggingMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/providers", h.HandleGetProviders)

		// Provider keys
		r.Route("/keys", func(r chi.Router) {
			r.Get("/", h.HandleGetKeys)
			r.Post("/", h.HandleAddKey)
			r.Post("/validate", h.HandleValidateAll)
			r.Delete("/{id}", h.HandleDeleteKey)
			r.Post("/{id}/activate", h.HandleActivateKey)
			r.Post("/{id}/validate", h.HandleValidateKey)
		})

		// Billing
		r.Get("/billing/summary", h.HandleGetSummary)
		r.Get("/billing/pricing", h.HandleGetPricing)
	})

	return r
}
