// Package gateway exposes the concierge over HTTP: the /chat turn endpoint
// plus health, readiness, and metrics.
//
// The gateway owns request-level concerns only: authentication, the payload
// size cap, JSON and Accept negotiation, and the error envelope. Everything
// conversational happens in the turn controller it wraps.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grandhotel/concierge/internal/health"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/turn"
)

// ipRateLimit is a coarse per-IP throttle in front of the per-session
// limiter, sized to never bite a well-behaved client.
const ipRateLimit = 120

// TurnHandler runs one conversational turn. Implemented by *turn.Controller.
type TurnHandler interface {
	Handle(ctx context.Context, in turn.Input) (*turn.Output, error)
}

// Server wires the HTTP surface.
type Server struct {
	turns   TurnHandler
	health  *health.Handler
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewServer creates a Server. metrics and logger may be nil.
func NewServer(turns TurnHandler, healthHandler *health.Handler, metrics *observe.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		turns:   turns,
		health:  healthHandler,
		metrics: metrics,
		logger:  logger,
	}
}

// Router builds the HTTP handler with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	r.Get("/health", s.health.Health)
	r.Get("/readyz", s.health.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(ipRateLimit, time.Minute))
		r.Post("/chat", s.handleChat)
	})

	return r
}
