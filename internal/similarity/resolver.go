// Package similarity resolves nearest-neighbor queries over the screenshot
// index into deduplicated, ranked match lists.
package similarity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
	"github.com/hyperjump/sokkuri/internal/vecindex"
)

// presignExpiry bounds how long returned screenshot URLs stay valid.
const presignExpiry = time.Hour

// Embedder produces an embedding vector for a stored object.
type Embedder interface {
	Embed(ctx context.Context, source models.ObjectRef) ([]float32, error)
}

// Resolver answers similarity queries. The index may hold several points
// for the same source object (re-ingests), so it over-fetches by the
// configured multiplier, deduplicates on the source reference, and then
// truncates to the requested size.
type Resolver struct {
	store              objstore.Store
	index              vecindex.Index
	embedder           Embedder
	defaultTopK        int
	prefetchMultiplier int
	logger             *zap.Logger
}

// NewResolver wires the similarity path. defaultTopK and prefetchMultiplier
// must already be validated as positive.
func NewResolver(store objstore.Store, index vecindex.Index, embedder Embedder,
	defaultTopK, prefetchMultiplier int, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:              store,
		index:              index,
		embedder:           embedder,
		defaultTopK:        defaultTopK,
		prefetchMultiplier: prefetchMultiplier,
		logger:             logger,
	}
}

// Similar returns up to TopK matches for the source screenshot, ordered by
// descending similarity, one entry per distinct source object.
func (r *Resolver) Similar(ctx context.Context, req models.SimilarRequest) (*models.SimilarResponse, error) {
	const op = "similarity.Similar"
	if err := req.Source.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindContent, op, err)
	}

	// Fail before embedding when the query object is absent: an expensive
	// accelerator round-trip for a missing object helps nobody.
	if err := r.store.Stat(ctx, req.Source); err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	limit := req.TopK
	if limit <= 0 {
		limit = r.defaultTopK
	}
	prefetch := limit * r.prefetchMultiplier

	vector, err := r.embedder.Embed(ctx, req.Source)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	candidates, err := r.index.Query(ctx, vector, prefetch)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	results := r.collate(ctx, candidates, limit)
	r.logger.Debug("similarity resolved",
		zap.String("source", req.Source.String()),
		zap.Int("limit", limit),
		zap.Int("prefetched", len(candidates)),
		zap.Int("returned", len(results)),
	)
	return &models.SimilarResponse{Results: results}, nil
}

// collate deduplicates candidates by source reference, keeping the first
// (highest-ranked) occurrence, and truncates to limit. Candidate order is
// preserved, so the output stays sorted by descending score.
func (r *Resolver) collate(ctx context.Context, candidates []vecindex.Candidate, limit int) []models.SimilarResult {
	results := make([]models.SimilarResult, 0, limit)
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key := c.Record.SourceRef.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		source := c.Record.SourceRef
		url, err := r.store.PresignGet(ctx, source, presignExpiry)
		if err != nil {
			// A match without a link is still a match.
			r.logger.Warn("presign failed", zap.String("object", source.String()), zap.Error(err))
			url = ""
		}
		results = append(results, models.SimilarResult{
			Score:  c.Score,
			Title:  c.Record.Title,
			URL:    url,
			Object: &source,
		})
		if len(results) == limit {
			break
		}
	}
	return results
}
