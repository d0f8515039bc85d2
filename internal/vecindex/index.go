// Package vecindex manages the vector collection: schema lifecycle,
// point insertion, and nearest-neighbor queries.
package vecindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/sokkuri/internal/models"
)

// Candidate is a ranked query hit with its stored record payload.
type Candidate struct {
	ID     string
	Score  float64
	Record models.ScreenshotRecord
}

// Index is the vector collection contract. Init is called once at startup
// and must fail fast on schema mismatch; it never adapts an existing
// collection silently.
type Index interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, id string, vector []float32, record models.ScreenshotRecord) error
	Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// NormalizeDistance maps a configured distance name onto the collection
// metric identifier. Unsupported names are a configuration error.
func NormalizeDistance(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cosine":
		return "Cosine", nil
	case "dot":
		return "Dot", nil
	case "euclid", "euclidean":
		return "Euclid", nil
	default:
		return "", fmt.Errorf("unsupported distance %q (use cosine, dot, or euclid)", raw)
	}
}
