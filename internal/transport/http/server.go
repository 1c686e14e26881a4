// Package http exposes the derivation run over a small HTTP surface:
// liveness, run status, and Prometheus metrics. The listener is optional and
// lives only for the duration of a batch.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"metrocli/internal/pipeline"
)

// RunPhase describes where the batch currently is.
type RunPhase string

const (
	PhasePending   RunPhase = "pending"
	PhaseRunning   RunPhase = "running"
	PhaseCompleted RunPhase = "completed"
	PhaseFailed    RunPhase = "failed"
)

// RunStatus is the JSON document served by GET /status.
type RunStatus struct {
	RunID     string                 `json:"run_id"`
	Phase     RunPhase               `json:"phase"`
	StartedAt time.Time              `json:"started_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Stages    []pipeline.StageResult `json:"stages,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// StatusStore holds the latest run status for the handlers to serve. The
// pipeline goroutine writes, HTTP handlers read.
type StatusStore struct {
	mu     sync.RWMutex
	status RunStatus
}

// NewStatusStore creates a store in the pending phase.
func NewStatusStore(runID string) *StatusStore {
	now := time.Now()
	return &StatusStore{status: RunStatus{
		RunID:     runID,
		Phase:     PhasePending,
		StartedAt: now,
		UpdatedAt: now,
	}}
}

// SetPhase updates the run phase.
func (s *StatusStore) SetPhase(phase RunPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Phase = phase
	s.status.UpdatedAt = time.Now()
}

// SetResults records the per-stage outcomes and the final phase.
func (s *StatusStore) SetResults(results []pipeline.StageResult, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Stages = results
	s.status.UpdatedAt = time.Now()
	if runErr != nil {
		s.status.Phase = PhaseFailed
		s.status.Error = runErr.Error()
		return
	}
	s.status.Phase = PhaseCompleted
}

// Snapshot returns a copy of the current status.
func (s *StatusStore) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.status
	status.Stages = append([]pipeline.StageResult(nil), s.status.Stages...)
	return status
}

// ServerConfig carries the listener timeouts.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the optional status listener.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	shutdown   time.Duration
}

// NewServer builds the router and server. metricsHandler may be nil when the
// Prometheus exporter is disabled.
func NewServer(cfg ServerConfig, store *StatusStore, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, store.Snapshot())
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger:   logger.With(slog.String("component", "status_server")),
		shutdown: cfg.ShutdownTimeout,
	}
}

// Start begins serving in a new goroutine. Listen errors other than a clean
// close are logged, not fatal: the batch does not depend on the listener.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status listener starting", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status listener stopped", slog.String("error", err.Error()))
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdown)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
