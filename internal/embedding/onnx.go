//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/hyperjump/sokkuri/internal/errs"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

// ImageNet channel statistics; the exported model was trained with them.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// ONNXEngine runs the vision model via ONNX Runtime. It requires CGO and
// the onnxruntime shared library, and when device is "cuda" the CUDA
// execution provider must initialize or construction fails. There is no
// silent CPU fallback.
type ONNXEngine struct {
	session      *ort.AdvancedSession
	sessionOpts  *ort.SessionOptions
	modelName    string
	dimensions   int
	inputSize    int
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXEngine loads the model at modelPath. The exported model takes one
// "pixel_values" input of shape (1, 3, inputSize, inputSize) and produces
// one "embedding" output of shape (1, dimensions).
func NewONNXEngine(modelPath, modelName, device string, dimensions, inputSize int) (*ONNXEngine, error) {
	const op = "embedding.NewONNXEngine"
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("failed to initialize ONNX runtime: %w", err))
		}
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errs.Wrap(errs.KindInference, op, err)
	}
	switch device {
	case "cuda":
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			sessionOpts.Destroy()
			return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("CUDA device is required for embeddings: %w", err))
		}
		if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
			cudaOpts.Destroy()
			sessionOpts.Destroy()
			return nil, errs.Wrap(errs.KindInference, op, err)
		}
		if err := sessionOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			cudaOpts.Destroy()
			sessionOpts.Destroy()
			return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("CUDA device is not available: %w", err))
		}
		cudaOpts.Destroy()
	case "cpu":
		// Explicit opt-in for development machines without a GPU.
	default:
		sessionOpts.Destroy()
		return nil, errs.Newf(errs.KindConfig, op, "unsupported embedding device %q (use cuda or cpu)", device)
	}

	inputData := make([]float32, 3*inputSize*inputSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(inputSize), int64(inputSize)), inputData)
	if err != nil {
		sessionOpts.Destroy()
		return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("failed to create input tensor: %w", err))
	}
	outputData := make([]float32, dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		sessionOpts.Destroy()
		return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("failed to create output tensor: %w", err))
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"embedding"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		sessionOpts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		sessionOpts.Destroy()
		return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("failed to create ONNX session: %w", err))
	}

	return &ONNXEngine{
		session:      session,
		sessionOpts:  sessionOpts,
		modelName:    modelName,
		dimensions:   dimensions,
		inputSize:    inputSize,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Embed runs one inference. The session and its tensors are reused, so
// calls are serialized on the engine mutex; the Gate above bounds how many
// callers queue here.
func (e *ONNXEngine) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	const op = "embedding.ONNXEngine.Embed"
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.fillInputTensor(img)
	if err := e.session.Run(); err != nil {
		return nil, errs.Wrap(errs.KindInference, op, fmt.Errorf("inference failed: %w", err))
	}

	out := e.outputTensor.GetData()
	vector := make([]float32, e.dimensions)
	copy(vector, out[:e.dimensions])
	return vector, nil
}

// fillInputTensor scales img to the model input size and writes normalized
// CHW float32 values into the pre-allocated tensor.
func (e *ONNXEngine) fillInputTensor(img image.Image) {
	scaled := image.NewRGBA(image.Rect(0, 0, e.inputSize, e.inputSize))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	data := e.inputTensor.GetData()
	plane := e.inputSize * e.inputSize
	for y := 0; y < e.inputSize; y++ {
		for x := 0; x < e.inputSize; x++ {
			offset := scaled.PixOffset(x, y)
			i := y*e.inputSize + x
			for c := 0; c < 3; c++ {
				v := float32(scaled.Pix[offset+c]) / 255.0
				data[c*plane+i] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}
}

// Dimensions returns the embedding dimension.
func (e *ONNXEngine) Dimensions() int {
	return e.dimensions
}

// ModelName returns the configured model identifier.
func (e *ONNXEngine) ModelName() string {
	return e.modelName
}

// Close destroys the session and tensors.
func (e *ONNXEngine) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.sessionOpts != nil {
		_ = e.sessionOpts.Destroy()
		e.sessionOpts = nil
	}
	return err
}
