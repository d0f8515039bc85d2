package vecindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hyperjump/sokkuri/internal/models"
)

// MemoryIndex is an in-memory brute-force index for tests. Scores are
// cosine similarity; equal scores keep insertion order (oldest first) so
// query results are deterministic.
type MemoryIndex struct {
	dimensions int
	mu         sync.RWMutex
	ids        []string
	vectors    [][]float32
	records    []models.ScreenshotRecord
}

// NewMemoryIndex creates an in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Init is a no-op; the in-memory collection always matches its own schema.
func (m *MemoryIndex) Init(ctx context.Context) error {
	return nil
}

// Insert appends a point.
func (m *MemoryIndex) Insert(ctx context.Context, id string, vector []float32, record models.ScreenshotRecord) error {
	if len(vector) != m.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vector), m.dimensions)
	}
	vec := make([]float32, m.dimensions)
	copy(vec, vector)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	m.vectors = append(m.vectors, vec)
	m.records = append(m.records, record)
	return nil
}

// Query returns up to limit candidates by cosine similarity, descending.
// The sort is stable over insertion order, so ties rank oldest first.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	candidates := make([]Candidate, len(m.ids))
	for i := range m.ids {
		candidates[i] = Candidate{
			ID:     m.ids[i],
			Score:  cosine(vector, m.vectors[i]),
			Record: m.records[i],
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// Count returns the number of stored points.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}

// Close is a no-op; the in-memory index holds no external resources.
func (m *MemoryIndex) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
