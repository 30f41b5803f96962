package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service  *appointment.Service
	Checks   []DependencyCheck
	Logger   zerolog.Logger
	Gatherer prometheus.Gatherer // nil disables /metrics
	RateRPS  float64             // <= 0 disables rate limiting
	Burst    int
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := handlers{svc: cfg.Service, log: cfg.Logger}

	r.Group(func(r chi.Router) {
		if cfg.RateRPS > 0 {
			r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.Burst)))
		}

		r.Get("/availability", h.availability)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
			r.Post("/{id}/status", h.updateStatus)
			r.Post("/{id}/reschedule", h.rescheduleAppointment)
		})

		r.Route("/blocked-slots", func(r chi.Router) {
			r.Post("/", h.createBlock)
			r.Get("/", h.listBlocks)
			r.Delete("/{id}", h.deleteBlock)
		})
	})

	return r
}
