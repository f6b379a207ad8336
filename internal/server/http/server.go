// Package httpserver provides the HTTP REST API for spreadsheet submission,
// progress and export.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/database"
	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/orchestrator"
)

// DefaultMaxUploadBytes caps multipart request bodies when Config leaves it unset.
const DefaultMaxUploadBytes = 32 << 20

// JobService is the job API the handlers drive. *orchestrator.Orchestrator satisfies it.
type JobService interface {
	CSVUpload(ctx context.Context, content io.Reader, filename, contactEmail, webhook string) (*domain.SpreadsheetJob, error)
	OutputCSV(ctx context.Context, jobID uuid.UUID, w io.Writer) error
	OutputXLSX(ctx context.Context, jobID uuid.UUID, w io.Writer) error
	Progress(ctx context.Context, jobID uuid.UUID) (*orchestrator.Progress, error)
}

// HealthChecker reports database health. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	jobs           JobService
	db             HealthChecker
	logger         zerolog.Logger
	maxUploadBytes int64
	streamInterval time.Duration
}

// Config holds HTTP server configuration.
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64

	// StreamInterval is how often the progress stream polls job state.
	StreamInterval time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, jobs JobService, db HealthChecker, logger zerolog.Logger) *Server {
	s := &Server{
		jobs:           jobs,
		db:             db,
		logger:         logger.With().Str("component", "http-server").Logger(),
		maxUploadBytes: cfg.MaxUploadBytes,
		streamInterval: cfg.StreamInterval,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = DefaultMaxUploadBytes
	}
	if s.streamInterval <= 0 {
		s.streamInterval = sseQueryInterval
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

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.accessLogMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", s.uploadSpreadsheet)
		r.Get("/{jobID}/progress", s.getProgress)
		r.Get("/{jobID}/progress/stream", s.streamProgress)
		r.Get("/{jobID}/csv", s.downloadCSV)
		r.Get("/{jobID}/xlsx", s.downloadXLSX)
	})

	return r
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
