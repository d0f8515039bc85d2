// Package embedserver provides the HTTP API of the embedding service. It
// fetches screenshots from the object store and serves their embedding
// vectors, refusing traffic until the model is loaded.
package embedserver

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"sync"
	"time"

	// Image formats accepted from the object store.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/embedding"
	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
)

// Server is the embedding service HTTP server.
type Server struct {
	store     objstore.Store
	readiness *embedding.Readiness
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server

	mu     sync.RWMutex
	engine embedding.Engine
}

// NewServer creates the embedding service. engine may be nil while the
// model is still loading; set it with SetEngine before marking readiness
// Ready. Requests are refused until readiness reports Ready.
func NewServer(store objstore.Store, engine embedding.Engine, readiness *embedding.Readiness,
	cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		store:     store,
		engine:    engine,
		readiness: readiness,
		config:    cfg,
		logger:    logger,
	}
}

// SetEngine installs the loaded engine.
func (s *Server) SetEngine(engine embedding.Engine) {
	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()
}

func (s *Server) getEngine() embedding.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Post("/embed", s.handleEmbed)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Embedder.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting embedding service", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if state, cause := s.readiness.State(); state != embedding.StateReady {
		s.logger.Warn("embed refused", zap.String("state", state.String()), zap.Error(cause))
		s.respondError(w, http.StatusServiceUnavailable, "model is not ready: "+state.String())
		return
	}

	var req models.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Source.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.store.Get(r.Context(), req.Source)
	if err != nil {
		s.logger.Error("embed: fetch failed", zap.String("source", req.Source.String()), zap.Error(err))
		s.respondError(w, errs.HTTPStatus(err), errs.Message(err))
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.respondError(w, http.StatusUnsupportedMediaType, "object is not a valid image")
		return
	}

	engine := s.getEngine()
	start := time.Now()
	vector, err := engine.Embed(r.Context(), img)
	if err != nil {
		s.logger.Error("embed: inference failed", zap.String("source", req.Source.String()), zap.Error(err))
		s.respondError(w, errs.HTTPStatus(err), errs.Message(err))
		return
	}
	s.logger.Debug("embedded screenshot",
		zap.String("source", req.Source.String()),
		zap.Duration("duration", time.Since(start)),
	)

	s.respondJSON(w, http.StatusOK, models.EmbedResponse{
		Model:     engine.ModelName(),
		Dimension: len(vector),
		Vector:    vector,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state, cause := s.readiness.State()
	body := map[string]interface{}{"status": state.String()}
	if state != embedding.StateReady {
		if cause != nil {
			body["error"] = cause.Error()
		}
		s.respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	engine := s.getEngine()
	body["model"] = engine.ModelName()
	body["dimension"] = engine.Dimensions()
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
