package transform

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gosuda/pipecraft/pipe"
)

var errDeadlineExceeded = errors.New("transform: deadline exceeded")

// Timeout arms an absolute deadline at Start, duration out from then.
// Each Next races upstream's call against the remaining time on a
// separate goroutine, so a call already blocked against a slow upstream
// is itself superseded by the terminal KindTimeout error rather than
// waiting for upstream to eventually return.
type Timeout[T any] struct {
	upstream   pipe.Pull[T]
	duration   time.Duration
	deadlineAt time.Time
	timedOut   atomic.Bool
	cache      pipe.PeekCache[T]
	closer     pipe.CloseOnce
}

// NewTimeout wraps upstream with a deadline armed at Start, d from then.
func NewTimeout[T any](upstream pipe.Pull[T], d time.Duration) *Timeout[T] {
	return &Timeout[T]{upstream: upstream, duration: d}
}

func (t *Timeout[T]) Start() error {
	t.deadlineAt = time.Now().Add(t.duration)
	return t.upstream.Start()
}

type timeoutResult[T any] struct {
	v   T
	ok  bool
	err error
}

func (t *Timeout[T]) rawNext() (T, bool, error) {
	var zero T
	if t.timedOut.Load() {
		return zero, false, pipe.NewError(pipe.KindTimeout, "timeout.Next", errDeadlineExceeded)
	}
	remaining := time.Until(t.deadlineAt)
	if remaining <= 0 {
		t.timedOut.Store(true)
		return zero, false, pipe.NewError(pipe.KindTimeout, "timeout.Next", errDeadlineExceeded)
	}

	resultCh := make(chan timeoutResult[T], 1)
	go func() {
		v, ok, err := t.upstream.Next()
		resultCh <- timeoutResult[T]{v, ok, err}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.ok, r.err
	case <-time.After(remaining):
		t.timedOut.Store(true)
		return zero, false, pipe.NewError(pipe.KindTimeout, "timeout.Next", errDeadlineExceeded)
	}
}

func (t *Timeout[T]) Next() (T, bool, error) { return t.cache.Next(t.rawNext) }
func (t *Timeout[T]) Peek() (T, bool, error) { return t.cache.Peek(t.rawNext) }
func (t *Timeout[T]) Progress() float64      { return t.upstream.Progress() }

func (t *Timeout[T]) Close() error {
	return t.closer.Do(t.upstream.Close)
}
