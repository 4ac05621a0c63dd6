// Package http serves the JSON query surface alongside health, readiness and
// metrics endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
)

// StatusSource is the scheduler state the query surface reads.
type StatusSource interface {
	Warnings() []domain.WarningEvent
	LastRun(class string) (time.Time, bool)
	CheckReadiness(ctx context.Context) error
}

// Simulator replays a historical window.
type Simulator interface {
	Simulate(ctx context.Context, start, end string) (pipeline.SimulationReport, error)
}

// Deps collects the collaborators behind the routes.
type Deps struct {
	Status    StatusSource
	Feed      pipeline.FeedFetcher
	Simulator Simulator
	Extract   domain.ExtractOptions

	// SimulateLimiter paces POST /api/warnings/simulate; nil allows every call.
	SimulateLimiter *rate.Limiter

	// Metrics serves /metrics; nil uses the default Prometheus handler.
	Metrics http.Handler
}

// Server exposes the query, health, readiness, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	started    time.Time
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /api routes plus /healthz, /readyz, and /metrics.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps:    deps,
		started: domain.Now(),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Status))
	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/warnings", s.handleWarnings)
		r.Get("/warnings/history", s.handleHistory)
		r.Get("/warnings/raw", s.handleRaw)
		r.Post("/warnings/simulate", s.handleSimulate)
		r.Get("/time", s.handleTime)
		r.Get("/health", s.handleHealth)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // simulate dispatches synchronously
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
