package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
	"github.com/hyperjump/sokkuri/internal/vecindex"
)

type fixedEmbedder struct {
	vector []float32
	calls  []models.ObjectRef
}

func (f *fixedEmbedder) Embed(ctx context.Context, source models.ObjectRef) ([]float32, error) {
	f.calls = append(f.calls, source)
	return f.vector, nil
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func unitVector(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func newTestOrchestrator(t *testing.T, embedder Embedder) (*Orchestrator, *objstore.MemoryStore, *vecindex.MemoryIndex) {
	t.Helper()
	store := objstore.NewMemoryStore()
	index, err := vecindex.NewMemoryIndex(768)
	require.NoError(t, err)
	orch := NewOrchestrator(store, index, embedder, "processed", 585, "vit_base_patch14_dinov2", zap.NewNop())
	return orch, store, index
}

func TestIngestPipeline(t *testing.T) {
	embedder := &fixedEmbedder{vector: unitVector(768, 0)}
	orch, store, index := newTestOrchestrator(t, embedder)

	source := models.ObjectRef{Bucket: "screens", Key: "shots/login.png"}
	require.NoError(t, store.Put(context.Background(), source, encodePNG(t, 1200, 800), "image/png"))

	resp, err := orch.Ingest(context.Background(), source)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RecordID)
	assert.Equal(t, source, resp.Source)
	assert.Equal(t, "processed", resp.Processed.Bucket)
	assert.Equal(t, "shots/login.processed.jpeg", resp.Processed.Key)

	// The processed copy is durable and resized.
	data, err := store.Get(context.Background(), resp.Processed)
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 585, cfg.Width)
	assert.Equal(t, 390, cfg.Height)

	// The embedding was computed from the source object.
	require.Len(t, embedder.calls, 1)
	assert.Equal(t, source, embedder.calls[0])

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := index.Query(context.Background(), unitVector(768, 0), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, resp.RecordID, hits[0].ID)
	assert.Equal(t, source, hits[0].Record.SourceRef)
	assert.Equal(t, "login.png", hits[0].Record.Title)
	assert.Equal(t, "vit_base_patch14_dinov2", hits[0].Record.Model)
}

func TestIngestMissingSource(t *testing.T) {
	orch, _, index := newTestOrchestrator(t, &fixedEmbedder{vector: unitVector(768, 0)})

	_, err := orch.Ingest(context.Background(), models.ObjectRef{Bucket: "screens", Key: "missing.png"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "no point may be inserted when an earlier stage fails")
}

func TestIngestUndecodableSource(t *testing.T) {
	orch, store, index := newTestOrchestrator(t, &fixedEmbedder{vector: unitVector(768, 0)})

	source := models.ObjectRef{Bucket: "screens", Key: "notes.txt"}
	require.NoError(t, store.Put(context.Background(), source, []byte("not an image"), "text/plain"))

	_, err := orch.Ingest(context.Background(), source)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindContent))

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestInvalidReference(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fixedEmbedder{vector: unitVector(768, 0)})
	_, err := orch.Ingest(context.Background(), models.ObjectRef{Bucket: "screens"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindContent))
}

func TestReingestAddsNewPoint(t *testing.T) {
	embedder := &fixedEmbedder{vector: unitVector(768, 3)}
	orch, store, index := newTestOrchestrator(t, embedder)

	source := models.ObjectRef{Bucket: "screens", Key: "dash.png"}
	require.NoError(t, store.Put(context.Background(), source, encodePNG(t, 800, 600), "image/png"))

	first, err := orch.Ingest(context.Background(), source)
	require.NoError(t, err)
	second, err := orch.Ingest(context.Background(), source)
	require.NoError(t, err)

	assert.NotEqual(t, first.RecordID, second.RecordID)
	assert.Equal(t, first.Processed, second.Processed, "processed key derivation is deterministic")

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Both points carry the same source reference for retrieval dedup.
	hits, err := index.Query(context.Background(), unitVector(768, 3), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, hits[0].Record.SourceRef, hits[1].Record.SourceRef)
}
