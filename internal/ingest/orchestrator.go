// Package ingest runs the screenshot ingestion pipeline: fetch, preprocess,
// store the processed copy, embed, and index.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
	"github.com/hyperjump/sokkuri/internal/preprocess"
	"github.com/hyperjump/sokkuri/internal/vecindex"
)

// Embedder produces an embedding vector for a stored object.
type Embedder interface {
	Embed(ctx context.Context, source models.ObjectRef) ([]float32, error)
}

// Orchestrator coordinates the ingestion stages. Each stage failure aborts
// the pipeline; a vector is only inserted after every prior stage succeeded,
// so the index never holds a point without its processed copy.
type Orchestrator struct {
	store           objstore.Store
	index           vecindex.Index
	embedder        Embedder
	processedBucket string
	targetWidth     int
	modelName       string
	logger          *zap.Logger
}

// NewOrchestrator wires the ingestion pipeline.
func NewOrchestrator(store objstore.Store, index vecindex.Index, embedder Embedder,
	processedBucket string, targetWidth int, modelName string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:           store,
		index:           index,
		embedder:        embedder,
		processedBucket: processedBucket,
		targetWidth:     targetWidth,
		modelName:       modelName,
		logger:          logger,
	}
}

// Ingest runs the full pipeline for one source screenshot. Re-ingesting the
// same source is safe: it adds a new point carrying the same source
// reference, and retrieval deduplicates on that reference.
func (o *Orchestrator) Ingest(ctx context.Context, source models.ObjectRef) (*models.IngestResponse, error) {
	const op = "ingest.Ingest"
	if err := source.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindContent, op, err)
	}

	start := time.Now()
	data, err := o.store.Get(ctx, source)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	result, err := preprocess.Transform(data, o.targetWidth)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	processed := models.ObjectRef{
		Bucket: o.processedBucket,
		Key:    source.ProcessedKey(result.Ext),
	}
	if err := o.store.Put(ctx, processed, result.Bytes, result.ContentType); err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	vector, err := o.embedder.Embed(ctx, source)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	record := models.ScreenshotRecord{
		ID:           uuid.NewString(),
		SourceRef:    source,
		ProcessedRef: processed,
		Title:        source.Title(),
		Model:        o.modelName,
		InsertedAt:   time.Now().UTC(),
	}
	if err := o.index.Insert(ctx, record.ID, vector, record); err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	o.logger.Info("ingested screenshot",
		zap.String("source", source.String()),
		zap.String("processed", processed.String()),
		zap.String("record_id", record.ID),
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Duration("duration", time.Since(start)),
	)

	return &models.IngestResponse{
		RecordID:  record.ID,
		Source:    source,
		Processed: processed,
	}, nil
}
