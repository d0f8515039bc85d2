package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Source.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ingest request", zap.String("source", req.Source.String()))
	resp, err := s.ingestor.Ingest(r.Context(), req.Source)
	if err != nil {
		s.logger.Error("ingest failed", zap.String("source", req.Source.String()), zap.Error(err))
		s.respondError(w, errs.HTTPStatus(err), errs.Message(err))
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Source.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("similar request", zap.String("source", req.Source.String()), zap.Int("top_k", req.TopK))
	resp, err := s.resolver.Similar(r.Context(), req)
	if err != nil {
		s.logger.Error("similarity failed", zap.String("source", req.Source.String()), zap.Error(err))
		s.respondError(w, errs.HTTPStatus(err), errs.Message(err))
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.counter.Count(ctx)
	if err != nil {
		s.logger.Error("status: count points failed", zap.Error(err))
		s.respondError(w, errs.HTTPStatus(err), errs.Message(err))
		return
	}

	embeddingStatus := "ok"
	if err := s.embedder.Health(ctx); err != nil {
		embeddingStatus = "unavailable"
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"indexed_screenshots": count,
		"embedding_service":   embeddingStatus,
		"config": map[string]interface{}{
			"collection":          s.config.Index.Collection,
			"dimensions":          s.config.Index.Dimensions,
			"distance":            s.config.Index.Distance,
			"model":               s.config.Embedding.ModelName,
			"default_top_k":       s.config.Search.DefaultTopK,
			"prefetch_multiplier": s.config.Search.PrefetchMultiplier,
			"target_width":        s.config.Search.TargetWidth,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
