// Package server provides the backend HTTP API for sokkuri.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/models"
)

// Ingestor runs the ingestion pipeline for one screenshot.
type Ingestor interface {
	Ingest(ctx context.Context, source models.ObjectRef) (*models.IngestResponse, error)
}

// Resolver answers similarity queries.
type Resolver interface {
	Similar(ctx context.Context, req models.SimilarRequest) (*models.SimilarResponse, error)
}

// Counter reports the number of indexed points.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// HealthChecker probes the embedding service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the backend HTTP server.
type Server struct {
	ingestor Ingestor
	resolver Resolver
	counter  Counter
	embedder HealthChecker
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ingestor Ingestor,
	resolver Resolver,
	counter Counter,
	embedder HealthChecker,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingestor: ingestor,
		resolver: resolver,
		counter:  counter,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Post("/api/v1/similar", s.handleSimilar)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
