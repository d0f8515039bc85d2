//go:build !cgo
// +build !cgo

package embedding

import (
	"github.com/hyperjump/sokkuri/internal/errs"
)

// NewONNXEngine is unavailable without CGO; the embedding service cannot
// run in a pure-Go build.
func NewONNXEngine(modelPath, modelName, device string, dimensions, inputSize int) (Engine, error) {
	return nil, errs.New(errs.KindConfig, "embedding.NewONNXEngine",
		"ONNX runtime requires a CGO-enabled build")
}
