// Package adapter bridges pipecraft's two dataflow contracts: SyncToAsync
// drains one or more pull pipes across a worker pool into a push
// listener, and AsyncToSync buffers a push pipe's output behind a bounded
// queue so it can be consumed through Next/Peek.
package adapter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gosuda/pipecraft/pipe"
)

// SyncToAsync drains pipes across w worker goroutines into a downstream
// Listener. Each worker pulls the next unstarted pipe off an internal job
// queue and drains it to completion before taking another. If any pipe
// raises an error, the remaining workers are cancelled, every owned pipe
// is closed, and the listener's OnError fires exactly once. Otherwise,
// once every pipe has been drained, OnDone fires exactly once. An
// external Close before either outcome interrupts the workers without
// notifying the listener again.
type SyncToAsync[T any] struct {
	pipes    []pipe.Pull[T]
	workers  int
	listener *pipe.TerminalGuard[T]

	cancel           context.CancelFunc
	done             chan struct{}
	closedExternally atomic.Bool
	inputCloser      pipe.CloseOnce
	closer           pipe.CloseOnce
}

// NewSyncToAsync builds a SyncToAsync over pipes, using workers concurrent
// goroutines to drain them (workers is clamped to at least 1 and to at
// most len(pipes)).
func NewSyncToAsync[T any](pipes []pipe.Pull[T], workers int) *SyncToAsync[T] {
	if workers < 1 {
		workers = 1
	}
	if workers > len(pipes) && len(pipes) > 0 {
		workers = len(pipes)
	}
	return &SyncToAsync[T]{pipes: pipes, workers: workers}
}

func (s *SyncToAsync[T]) SetListener(l pipe.Listener[T]) {
	s.listener = pipe.NewTerminalGuard(l)
}

func (s *SyncToAsync[T]) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	jobs := make(chan pipe.Pull[T], len(s.pipes))
	for _, p := range s.pipes {
		jobs <- p
	}
	close(jobs)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case p, ok := <-jobs:
					if !ok {
						return nil
					}
					if err := s.drainPipe(gctx, p); err != nil {
						return err
					}
				}
			}
		})
	}

	go func() {
		err := g.Wait()
		s.closeInputs()
		if !s.closedExternally.Load() {
			if err != nil {
				s.listener.OnError(pipe.NewError(pipe.KindIO, "synctoasync", err))
			} else {
				s.listener.OnDone()
			}
		}
		close(s.done)
	}()
	return nil
}

func (s *SyncToAsync[T]) drainPipe(ctx context.Context, p pipe.Pull[T]) error {
	if err := p.Start(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		v, ok, err := p.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.listener.OnNext(v)
	}
}

func (s *SyncToAsync[T]) closeInputs() {
	s.inputCloser.Do(func() error {
		closers := make([]pipe.Pipe, len(s.pipes))
		for i, p := range s.pipes {
			closers[i] = p
		}
		return pipe.CloseAll("synctoasync.closeInputs", closers...)
	})
}

// Progress averages the progress reported by each owned pipe.
func (s *SyncToAsync[T]) Progress() float64 {
	if len(s.pipes) == 0 {
		return 1
	}
	var sum float64
	for _, p := range s.pipes {
		sum += p.Progress()
	}
	return sum / float64(len(s.pipes))
}

func (s *SyncToAsync[T]) Close() error {
	return s.closer.Do(func() error {
		s.closedExternally.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		if s.done != nil {
			<-s.done
		}
		s.closeInputs()
		return nil
	})
}

var _ pipe.Push[int] = (*SyncToAsync[int])(nil)
