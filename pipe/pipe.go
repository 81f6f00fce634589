package pipe

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Pipe is the lifecycle every operator in pipecraft implements, regardless
// of whether it is pull- or push-driven. Construction performs no I/O;
// Start is invoked exactly once before any data transfer; Close is
// idempotent and always releases owned resources, including upstream
// pipes.
type Pipe interface {
	// Start prepares the pipe for data transfer. It may block and is the
	// sole place for preparatory I/O (opening files, dialing sockets,
	// spawning temporary workers). Start is called at most once.
	Start() error

	// Close releases resources owned by this pipe, including any upstream
	// pipes it owns. Close must be safe to call on a partially started or
	// already-closed pipe, and must be idempotent: P.Close(); P.Close()
	// has the same effect as a single call.
	Close() error

	// Progress reports a monotonically non-decreasing value in [0,1].
	// Safe to call from any thread at any time, including before Start.
	Progress() float64
}

// CloseAll closes every pipe in closers, in the given order, accumulating
// errors: the last error is surfaced, earlier errors are logged. Nil
// closers are skipped.
func CloseAll(op string, closers ...Pipe) error {
	var last error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			if last != nil {
				log.Debug().Err(last).Str("op", op).Msg("pipecraft: earlier close error superseded")
			}
			last = err
		}
	}
	if last != nil {
		return NewError(KindInternal, op, last)
	}
	return nil
}

// CloseOnce wraps a close function so repeated invocations are no-ops that
// return the first call's result, the same sync.Once-guarded idempotency
// pattern used throughout this codebase's session teardown paths.
type CloseOnce struct {
	once sync.Once
	err  error
}

// Do runs fn exactly once across all calls to Do, caching and returning its
// result on every subsequent call.
func (c *CloseOnce) Do(fn func() error) error {
	c.once.Do(func() {
		c.err = fn()
	})
	return c.err
}

// base is embedded by concrete pipes to share the started/closed bookkeeping
// every implementation needs.
type base struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

// MarkStarted records that Start has run; it panics if called twice.
// Start invoked exactly once is an invariant implementations may assume
// rather than defensively re-check per call.
func (b *base) MarkStarted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		panic("pipe: Start called twice")
	}
	b.started = true
}

// MarkClosed reports whether this is the first call to MarkClosed. Callers
// use it to guard the body of Close so repeated calls are no-ops.
func (b *base) MarkClosed() (first bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	first = !b.closed
	b.closed = true
	return first
}

// Closed reports whether Close has already run.
func (b *base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
