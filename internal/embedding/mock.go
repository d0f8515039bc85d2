package embedding

import (
	"context"
	"image"
	"math"

	"github.com/hyperjump/sokkuri/internal/errs"
)

// MockEngine is a deterministic in-process engine for tests and local
// development. Vectors are derived from pixel content, so identical images
// embed identically and similar images land near each other.
type MockEngine struct {
	dimensions int
	modelName  string
	closed     bool
}

// NewMockEngine returns a mock engine producing unit vectors of the given
// dimension.
func NewMockEngine(dimensions int) *MockEngine {
	return &MockEngine{dimensions: dimensions, modelName: "mock"}
}

// Embed hashes coarse image statistics into a normalized vector.
func (m *MockEngine) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if m.closed {
		return nil, errs.New(errs.KindInternal, "embedding.MockEngine.Embed", "engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "embedding.MockEngine.Embed", err)
	}

	bounds := img.Bounds()
	vector := make([]float64, m.dimensions)
	// Sample a fixed grid so the result is independent of image size. Each
	// channel folds into its own slot range so images differing in one
	// channel never collapse to the same vector.
	const grid = 16
	span := m.dimensions / 3
	if span == 0 {
		span = 1
	}
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x := bounds.Min.X + gx*bounds.Dx()/grid
			y := bounds.Min.Y + gy*bounds.Dy()/grid
			r, g, b, _ := img.At(x, y).RGBA()
			cell := gy*grid + gx
			for c, v := range [3]uint32{r, g, b} {
				vector[(c*span+cell%span)%m.dimensions] += float64(v >> 8)
			}
		}
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, m.dimensions)
	for i, v := range vector {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (m *MockEngine) Dimensions() int {
	return m.dimensions
}

func (m *MockEngine) ModelName() string {
	return m.modelName
}

func (m *MockEngine) Close() error {
	m.closed = true
	return nil
}
