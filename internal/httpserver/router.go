package httpserver

import (
	"log/slog"
	"net/http"

	"lv-risk/internal/health"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Logger            *slog.Logger
	HealthHandler     *health.Handler
	AlterationHandler *AlterationHandler
	CandleHandler     *CandleHandler
	AccountHandler    *AccountHandler
	PositionsWS       http.Handler
	Gatherer          prometheus.Gatherer
	InternalToken     string
	RateLimiter       *RateLimiter
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if d.Logger != nil {
		r.Use(RequestLogger(d.Logger))
	}
	r.Use(SecurityHeaders)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/full", d.HealthHandler.Full)

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}
		r.Get("/v1/candles/synthetic", d.CandleHandler.Synthetic)
		if d.PositionsWS != nil {
			r.Get("/ws/positions", d.PositionsWS.ServeHTTP)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		if d.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
		}
		r.Route("/internal", func(r chi.Router) {
			r.Get("/alterations", d.AlterationHandler.List)
			r.Post("/alterations", d.AlterationHandler.Create)
			r.Delete("/alterations/{id}", d.AlterationHandler.Delete)
			r.Get("/accounts/{id}/state", d.AccountHandler.State)
		})
	})
	return r
}
