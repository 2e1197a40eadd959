// Package api provides the operational HTTP server: health, readiness, metrics and cycle status.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/skatehive-leaderboard/internal/circuitbreaker"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/metrics"
)

// Checker reports whether one dependency is usable.
type Checker func(ctx context.Context) error

// Server represents the ops HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	checks     map[string]Checker
	metrics    *metrics.Metrics
	breakers   *circuitbreaker.CircuitBreakerManager
	status     *CycleStatus
	budget     BudgetReporter
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CheckTimeout    time.Duration
}

// DefaultServerConfig returns timeouts suited to a scrape endpoint.
func DefaultServerConfig(addr string) *ServerConfig {
	return &ServerConfig{
		Addr:            addr,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CheckTimeout:    2 * time.Second,
	}
}

// BudgetReporter exposes usage of the shared Hive request budget.
type BudgetReporter interface {
	Used(ctx context.Context) (int, error)
	Budget() int
}

// Option customizes the server.
type Option func(*Server)

// WithCheck adds a named readiness check.
func WithCheck(name string, check Checker) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithBreakers exposes circuit breaker states on /status.
func WithBreakers(m *circuitbreaker.CircuitBreakerManager) Option {
	return func(s *Server) { s.breakers = m }
}

// WithCycleStatus exposes the last refresh cycle on /status.
func WithCycleStatus(st *CycleStatus) Option {
	return func(s *Server) { s.status = st }
}

// WithRequestBudget exposes the current budget window on /status.
func WithRequestBudget(b BudgetReporter) Option {
	return func(s *Server) { s.budget = b }
}

// NewServer creates a new ops server instance.
func NewServer(config *ServerConfig, m *metrics.Metrics, logger *logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		router:  mux.NewRouter(),
		checks:  map[string]Checker{},
		metrics: m,
		logger:  logger,
		config:  config,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "skatehive-leaderboard",
	})
}

// handleReady runs every readiness check and fails if any of them does.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.CheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{}
	if s.status != nil {
		body["last_cycle"] = s.status.Snapshot()
	}
	if s.breakers != nil {
		body["breakers"] = s.breakers.States()
	}
	if s.budget != nil {
		budget := map[string]interface{}{"limit": s.budget.Budget()}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.CheckTimeout)
		used, err := s.budget.Used(ctx)
		cancel()
		if err != nil {
			budget["error"] = err.Error()
		} else {
			budget["used"] = used
		}
		body["hive_budget"] = budget
	}
	respondJSON(w, http.StatusOK, body)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting ops server")
	if err := s.httpServer.ListenAndServe(); err != nil {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down ops server")
	return s.httpServer.Shutdown(ctx)
}
