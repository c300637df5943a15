package plot

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of renders running at once. Rendering is CPU-bound,
// so callers queue here instead of all competing for cores.
type Pool struct {
	sem     *semaphore.Weighted
	workers int
}

// NewPool returns a pool admitting workers concurrent renders.
// workers <= 0 means GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), workers: workers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Render waits for a free slot and then calls Render. A context that ends
// while waiting, or before the render starts, aborts with ctx.Err(); a render
// in progress always runs to completion.
func (p *Pool) Render(ctx context.Context, samples []Sample, cfg RenderConfig) (*Artifact, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("plot: wait for render slot: %w", err)
	}
	defer p.sem.Release(1)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("plot: render not started: %w", err)
	}
	return Render(samples, cfg)
}
