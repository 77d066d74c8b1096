package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jojo-app/realtime-server-go/internal/config"
	"github.com/jojo-app/realtime-server-go/internal/metrics"
	"github.com/jojo-app/realtime-server-go/internal/middleware"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Events  *EventsHandler
	Moments *MomentHandler
	Calls   *CallHandler
	Wall    *WallHandler
	Reviews *ReviewHandler
	Health  http.Handler
	Metrics http.Handler

	Auth           *middleware.AuthMiddleware
	RateLimit      *middleware.RateLimitMiddleware
	ConnectLimit   *middleware.IPRateLimitMiddleware
	InternalSecret *middleware.InternalSecretMiddleware
	Collector      metrics.MetricsCollector
	IsProduction   bool
}

func NewRouter(d RouterDeps) http.Handler {
	collector := d.Collector
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(collector))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewSecurityHeadersMiddleware(d.IsProduction).Handler)

	r.Get("/health", d.Health.ServeHTTP)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	// The stream is long-lived, so it stays outside the request timeout. The
	// session id from connection:success is the capability for room changes.
	r.Route("/v1/events", func(r chi.Router) {
		if d.ConnectLimit != nil {
			r.With(d.ConnectLimit.Handler).Get("/", d.Events.ServeHTTP)
		} else {
			r.Get("/", d.Events.ServeHTTP)
		}
		r.Post("/{sessionId}/rooms/{room}", d.Events.JoinRoom)
		r.Delete("/{sessionId}/rooms/{room}", d.Events.LeaveRoom)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(middleware.NewBodyLimitMiddleware(0).Handler)

		r.Get("/v1/realtime/stats", d.Events.Stats)

		r.Route("/v1", func(r chi.Router) {
			r.Use(d.Auth.Handler)
			if d.RateLimit != nil {
				r.Use(d.RateLimit.Handler)
			}
			r.Mount("/moments", d.Moments.Routes())
			r.Mount("/calls", d.Calls.Routes())
			r.Mount("/wall", d.Wall.Routes())
			r.Mount("/reviews", d.Reviews.Routes())
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(d.InternalSecret.Handler)
			r.Mount("/calls", d.Calls.InternalRoutes())
		})
	})

	return r
}
