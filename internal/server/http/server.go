// Package httpserver provides the HTTP REST API for ISERN analysis runs.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dport96/ISERN-Graph/internal/database"
	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
	"github.com/dport96/ISERN-Graph/internal/repository"
)

// Runner is the analysis service behind the API. *pipeline.Service implements it.
type Runner interface {
	Start(ctx context.Context) (*domain.Run, error)
	Wait()
	Running() bool
	Progress() (pipeline.Progress, bool)
	Score(a, b string) pipeline.NameScore
	Roster() *domain.Roster
	Threshold() float64
}

// HealthChecker reports database health. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

var _ Runner = (*pipeline.Service)(nil)

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	runner     Runner
	runRepo    repository.RunRepository
	health     HealthChecker
	metrics    http.Handler
	cfg        Config
	logger     zerolog.Logger

	// runCtx outlives requests; runs started through the API are bound to it.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string
}

// Option customizes a Server.
type Option func(*Server)

// WithHealthChecker reports database health on /healthz and /readyz.
func WithHealthChecker(h HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, runner Runner, runRepo repository.RunRepository, logger zerolog.Logger, opts ...Option) *Server {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:    runner,
		runRepo:   runRepo,
		metrics:   promhttp.Handler(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "http-server").Logger(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger))

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.cfg.MetricsPath != "" && s.metrics != nil {
		r.Handle(s.cfg.MetricsPath, s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs/current/progress", s.streamProgress)

		r.Group(func(r chi.Router) {
			r.Use(jsonContentTypeMiddleware)

			r.Post("/runs", s.startRun)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/latest", s.getLatestRun)
			r.Get("/runs/current", s.getCurrentRun)
			r.Get("/runs/{runID}", s.getRun)
			r.Delete("/runs/{runID}", s.deleteRun)
			r.Get("/runs/{runID}/labels", s.getRunLabels)
			r.Get("/runs/{runID}/edges", s.getRunEdges)

			r.Get("/roster", s.getRoster)
			r.Post("/names/score", s.scoreNames)
		})
	})

	return r
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests, cancels any run started through the API and waits
// for it to record its final state.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		s.runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for analysis run: %w", ctx.Err()))
	}
	return err
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "disabled"})
		return
	}
	health := s.health.Health(r.Context())
	if health.Healthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
	})
}

// readinessHandler reports whether the API can serve run requests.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		health := s.health.Health(r.Context())
		if !health.Healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"database": health.Status,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"members": s.runner.Roster().Len(),
		"running": s.runner.Running(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
