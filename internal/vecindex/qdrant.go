package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
)

// QdrantIndex talks to a Qdrant server over its HTTP API.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	distance   string
	client     *http.Client
}

// NewQdrantIndex creates an index client from index settings. The distance
// name is validated here; connectivity and schema are checked by Init.
func NewQdrantIndex(cfg *config.IndexConfig) (*QdrantIndex, error) {
	distance, err := NormalizeDistance(cfg.Distance)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "vecindex.NewQdrantIndex", err)
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		distance:   distance,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors vectorParams `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
		PointsCount int `json:"points_count"`
	} `json:"result"`
	Status interface{} `json:"status"`
}

// Init ensures the collection exists with the configured dimension and
// distance. An existing collection with different parameters is a schema
// mismatch: fatal, never adapted.
func (q *QdrantIndex) Init(ctx context.Context) error {
	const op = "vecindex.Init"
	status, body, err := q.do(ctx, http.MethodGet, "/collections/"+q.collection, nil)
	if err != nil {
		return errs.Wrap(errs.KindUpstream, op, err)
	}

	switch {
	case status == http.StatusNotFound:
		payload := map[string]interface{}{
			"vectors": vectorParams{Size: q.dimensions, Distance: q.distance},
		}
		status, body, err = q.do(ctx, http.MethodPut, "/collections/"+q.collection, payload)
		if err != nil {
			return errs.Wrap(errs.KindUpstream, op, err)
		}
		if status != http.StatusOK {
			return errs.Newf(errs.KindUpstream, op, "create collection failed: status %d: %s", status, body)
		}
		return nil
	case status == http.StatusOK:
		var info collectionInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return errs.Wrap(errs.KindUpstream, op, err)
		}
		got := info.Result.Config.Params.Vectors
		if got.Size != q.dimensions || !strings.EqualFold(got.Distance, q.distance) {
			return errs.Newf(errs.KindSchemaMismatch, op,
				"collection %q has mismatched vector config: size %d vs expected %d, distance %s vs expected %s",
				q.collection, got.Size, q.dimensions, got.Distance, q.distance)
		}
		return nil
	default:
		return errs.Newf(errs.KindUpstream, op, "collection check failed: status %d: %s", status, body)
	}
}

// Insert upserts one point with the record as payload. The write waits for
// durability so a successful return means the point is queryable.
func (q *QdrantIndex) Insert(ctx context.Context, id string, vector []float32, record models.ScreenshotRecord) error {
	const op = "vecindex.Insert"
	if len(vector) != q.dimensions {
		return errs.Newf(errs.KindInternal, op, "vector dimension mismatch: got %d, expected %d", len(vector), q.dimensions)
	}
	payload := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": vector, "payload": record},
		},
	}
	status, body, err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", payload)
	if err != nil {
		return errs.Wrap(errs.KindUpstream, op, err)
	}
	if status != http.StatusOK {
		return errs.Newf(errs.KindUpstream, op, "upsert failed: status %d: %s", status, body)
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		ID      json.RawMessage         `json:"id"`
		Score   float64                 `json:"score"`
		Payload models.ScreenshotRecord `json:"payload"`
	} `json:"result"`
}

// pointID renders a Qdrant point ID as a string. Points are written with
// UUID IDs, which come back as JSON strings; numeric IDs (from collections
// populated elsewhere) are kept as their literal text.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// Query returns up to limit candidates ordered by similarity, descending.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	const op = "vecindex.Query"
	payload := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	status, body, err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, op, err)
	}
	if status != http.StatusOK {
		return nil, errs.Newf(errs.KindUpstream, op, "search failed: status %d: %s", status, body)
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, op, err)
	}
	candidates := make([]Candidate, 0, len(resp.Result))
	for _, hit := range resp.Result {
		candidates = append(candidates, Candidate{
			ID:     pointID(hit.ID),
			Score:  hit.Score,
			Record: hit.Payload,
		})
	}
	return candidates, nil
}

// Count returns the exact number of indexed points.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	const op = "vecindex.Count"
	status, body, err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/count",
		map[string]interface{}{"exact": true})
	if err != nil {
		return 0, errs.Wrap(errs.KindUpstream, op, err)
	}
	if status != http.StatusOK {
		return 0, errs.Newf(errs.KindUpstream, op, "count failed: status %d: %s", status, body)
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, errs.Wrap(errs.KindUpstream, op, err)
	}
	return resp.Result.Count, nil
}

// Close releases pooled connections to the index server.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
