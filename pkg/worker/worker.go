// Package worker provides the bounded-concurrency pool that drives scatter
// fan-out. It is exported so handler implementations that fan work out
// themselves can reuse the same primitive.
package worker

import (
	"context"
	"sync"
)

// DefaultSize is the pool size used when the caller does not configure one.
const DefaultSize = 4

// Pool executes indexed jobs with a fixed number of goroutines.
type Pool struct {
	size int
}

// New returns a pool of the given size. A non-positive size falls back to
// DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{size: size}
}

// Size returns the number of goroutines Map runs at most.
func (p *Pool) Size() int { return p.size }

// Map runs fn for every index in [0, n), at most Size at a time. Completion
// order is unspecified; fn records its own result by index, and writes made
// inside fn are visible to the caller once Map returns.
//
// When failFast is true the first fn error cancels the context handed to
// in-flight jobs and stops dispatching new ones; jobs that never started
// are skipped. Map returns the parent context's error when it is cancelled.
// Per-job errors stay with the caller through fn's own bookkeeping.
func (p *Pool) Map(ctx context.Context, n int, failFast bool, fn func(ctx context.Context, index int) error) error {
	if n <= 0 {
		return ctx.Err()
	}

	jobCtx := ctx
	var cancel context.CancelFunc
	if failFast {
		jobCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	workers := p.size
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := fn(jobCtx, i); err != nil && cancel != nil {
					cancel()
				}
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-jobCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}
