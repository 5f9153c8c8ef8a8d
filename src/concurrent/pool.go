// Package concurrent provides bounded fan-out helpers. Results keep input
// order so a parallel phase can be frozen before the next phase reads it.
package concurrent

import (
	"context"
	"errors"
	"sync"
)

// DefaultLimit is used when a non-positive concurrency limit is given.
const DefaultLimit = 4

// WorkerPool bounds how many functions run at once across callers.
type WorkerPool struct {
	limit int
	sem   chan struct{}
}

func NewWorkerPool(limit int) *WorkerPool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &WorkerPool{
		limit: limit,
		sem:   make(chan struct{}, limit),
	}
}

// Limit returns the pool size.
func (wp *WorkerPool) Limit() int { return wp.limit }

// Do waits for a free slot, then runs fn. It returns ctx.Err() if the context
// ends before a slot frees up.
func (wp *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn(ctx)
	}
}

// ParallelMap applies fn to every item with at most limit calls in flight and
// returns the results in input order. The first failure cancels the context
// handed to the remaining calls; the error reported is the one from the
// lowest-index item that failed for a reason other than that cancellation.
func ParallelMap[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, int, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	errs := make([]error, len(items))
	pool := NewWorkerPool(limit)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			errs[idx] = pool.Do(ctx, func(ctx context.Context) error {
				r, err := fn(ctx, idx, val)
				results[idx] = r
				return err
			})
			if errs[idx] != nil {
				cancel()
			}
		}(i, item)
	}
	wg.Wait()

	return results, firstError(errs)
}

// ParallelForEach is ParallelMap without results.
func ParallelForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, int, T) error) error {
	_, err := ParallelMap(ctx, items, limit, func(ctx context.Context, i int, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	return err
}

func firstError(errs []error) error {
	var fallback error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if fallback == nil {
				fallback = err
			}
			continue
		}
		return err
	}
	return fallback
}
