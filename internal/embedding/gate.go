package embedding

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/hyperjump/sokkuri/internal/errs"
	"golang.org/x/sync/semaphore"
)

// Gate bounds concurrent access to the accelerator. The device is a single
// exclusive resource: callers queue on a weighted semaphore (FIFO for
// blocked waiters) instead of contending on the engine directly, and a
// wait longer than the configured timeout fails with a timeout error.
type Gate struct {
	engine  Engine
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewGate wraps engine with an admission queue of the given capacity.
// Capacity below 1 is raised to 1; the accelerator always admits at least
// one request at a time.
func NewGate(engine Engine, maxConcurrent int64, timeout time.Duration) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{
		engine:  engine,
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
	}
}

// Embed waits for an accelerator slot, then runs inference. A wait
// exceeding the gate timeout returns a timeout error rather than blocking
// indefinitely; cancellation of the caller's context propagates.
func (g *Gate) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errs.Newf(errs.KindTimeout, "embedding.Gate",
				"accelerator admission wait exceeded %s", g.timeout)
		}
		return nil, errs.Wrap(errs.KindInternal, "embedding.Gate", err)
	}
	defer g.sem.Release(1)
	return g.engine.Embed(ctx, img)
}

// Dimensions returns the wrapped engine's dimension.
func (g *Gate) Dimensions() int {
	return g.engine.Dimensions()
}

// ModelName returns the wrapped engine's model name.
func (g *Gate) ModelName() string {
	return g.engine.ModelName()
}

// Close closes the wrapped engine.
func (g *Gate) Close() error {
	return g.engine.Close()
}
