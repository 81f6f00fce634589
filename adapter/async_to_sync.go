package adapter

import (
	"github.com/gosuda/pipecraft/pipe"
)

type asyncItemKind int

const (
	asyncValue asyncItemKind = iota
	asyncEnd
	asyncError
)

type asyncItem[T any] struct {
	kind asyncItemKind
	val  T
	err  error
}

// AsyncToSync bridges a push pipe back into the pull contract, buffering
// its output behind a channel of capacity cap. The push listener's OnNext
// blocks the producer when the channel is full, giving backpressure for
// free; OnDone maps to end-of-stream and OnError raises exactly once, with
// every Next call afterwards returning end-of-stream rather than
// repeating the error.
type AsyncToSync[T any] struct {
	push pipe.Push[T]
	cap  int

	ch    chan asyncItem[T]
	ended bool

	cache  pipe.PeekCache[T]
	closer pipe.CloseOnce
}

// NewAsyncToSync builds an AsyncToSync over push, buffering up to
// capacity items ahead of the consumer.
func NewAsyncToSync[T any](push pipe.Push[T], capacity int) *AsyncToSync[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &AsyncToSync[T]{push: push, cap: capacity}
}

func (s *AsyncToSync[T]) Start() error {
	s.ch = make(chan asyncItem[T], s.cap)
	s.push.SetListener(pipe.FuncListener[T]{
		Next:  func(v T) { s.ch <- asyncItem[T]{kind: asyncValue, val: v} },
		Done:  func() { s.ch <- asyncItem[T]{kind: asyncEnd} },
		Error: func(e error) { s.ch <- asyncItem[T]{kind: asyncError, err: e} },
	})
	return s.push.Start()
}

func (s *AsyncToSync[T]) rawNext() (T, bool, error) {
	var zero T
	if s.ended {
		return zero, false, nil
	}
	item, ok := <-s.ch
	if !ok {
		s.ended = true
		return zero, false, nil
	}
	switch item.kind {
	case asyncValue:
		return item.val, true, nil
	case asyncEnd:
		s.ended = true
		return zero, false, nil
	case asyncError:
		s.ended = true
		return zero, false, pipe.NewError(pipe.KindQueue, "asynctosync.Next", item.err)
	default:
		s.ended = true
		return zero, false, nil
	}
}

func (s *AsyncToSync[T]) Next() (T, bool, error) { return s.cache.Next(s.rawNext) }
func (s *AsyncToSync[T]) Peek() (T, bool, error) { return s.cache.Peek(s.rawNext) }

// Progress forwards the upstream push pipe's own progress.
func (s *AsyncToSync[T]) Progress() float64 { return s.push.Progress() }

func (s *AsyncToSync[T]) Close() error {
	return s.closer.Do(func() error {
		return s.push.Close()
	})
}

var _ pipe.Pull[int] = (*AsyncToSync[int])(nil)
