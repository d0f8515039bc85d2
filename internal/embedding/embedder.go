// Package embedding provides the accelerator-resident image embedding
// engine, its admission gate, and the backend-side HTTP client.
package embedding

import (
	"context"
	"image"
)

// Engine produces fixed-dimension embedding vectors for images.
type Engine interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}
