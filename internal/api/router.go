package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ampfilter/internal/middleware"
)

// NewRouter builds the HTTP surface: rule management, event stream,
// health, stats, and Prometheus metrics.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	r.Post("/rules", h.AddRule)
	r.Get("/rules", h.ListRules)
	r.Get("/rules/{deviceID}", h.ListDeviceRules)
	r.Delete("/rules/{deviceID}/{handle}", h.RemoveRule)
	r.Get("/rules/{deviceID}/{handle}/state", h.GetState)

	r.Get("/ws", h.HandleWS)
	r.Get("/health", h.Health)
	r.Get("/stats", h.GetStats)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
