package retry

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Executor runs a task, typically by handing it to an existing worker
// pool. ParallelTaskProcessor never shuts an Executor down; a caller
// that passes one in owns its lifecycle.
type Executor interface {
	Submit(task func())
}

// ParallelTaskProcessor fans a slice of items out across a worker count,
// or across a supplied Executor, cancelling the remaining tasks the
// moment any one of them fails and re-throwing that first error.
type ParallelTaskProcessor[T any] struct {
	workers  int
	executor Executor
}

// NewParallelTaskProcessor runs tasks across a fixed-size internal
// worker pool bounded by workers (clamped to at least 1).
func NewParallelTaskProcessor[T any](workers int) *ParallelTaskProcessor[T] {
	if workers < 1 {
		workers = 1
	}
	return &ParallelTaskProcessor[T]{workers: workers}
}

// NewParallelTaskProcessorWithExecutor runs tasks through executor
// instead of an internal pool. The processor never calls any shutdown
// method on executor; the caller retains ownership.
func NewParallelTaskProcessorWithExecutor[T any](executor Executor) *ParallelTaskProcessor[T] {
	return &ParallelTaskProcessor[T]{executor: executor}
}

// Run executes task(v) for every v in items. On the first failure,
// remaining in-flight and not-yet-started tasks are cancelled via ctx
// and Run returns that first error; otherwise it returns nil once every
// task has completed.
func (p *ParallelTaskProcessor[T]) Run(ctx context.Context, items []T, task func(ctx context.Context, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)

	if p.executor != nil {
		for _, item := range items {
			item := item
			done := make(chan error, 1)
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case err := <-done:
					return err
				}
			})
			p.executor.Submit(func() {
				done <- task(gctx, item)
			})
		}
		return g.Wait()
	}

	sem := make(chan struct{}, p.workers)
	for _, item := range items {
		item := item
		select {
		case <-gctx.Done():
			return g.Wait()
		case sem <- struct{}{}:
		}
		g.Go(func() error {
			defer func() { <-sem }()
			return task(gctx, item)
		})
	}
	return g.Wait()
}
