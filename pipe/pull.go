package pipe

// Pull is a lazy finite sequence driven by downstream calls. Next returns
// (zero, false) once the upstream is exhausted; every subsequent call must
// keep returning (zero, false) forever. Peek returns the next value
// without consuming it and must be idempotent until the matching Next
// call. The same goroutine that calls Start is the owner of
// Next/Peek/Close unless a concrete type documents otherwise.
type Pull[T any] interface {
	Pipe

	// Next advances and returns the next item, or (zero, false) at
	// end-of-stream. Errors from upstream propagate synchronously — callers
	// distinguish "no more items" from "failed" via the error return.
	Next() (T, bool, error)

	// Peek returns the next item without consuming it. Calling Peek
	// repeatedly without an intervening Next returns the same item.
	Peek() (T, bool, error)
}

// Source is a Pull pipe that takes no upstream; it exists only as a marker
// for documentation — sources still implement Pull[T].
type Source[T any] interface {
	Pull[T]
}

// peekCache is embedded by Pull implementations that need the standard
// "pre-fetch one item to support idempotent Peek" behavior.
type peekCache[T any] struct {
	has   bool
	valid bool // whether cached value is a real item vs end-of-stream
	val   T
	err   error
}

func (c *peekCache[T]) fill(next func() (T, bool, error)) (T, bool, error) {
	if !c.has {
		c.val, c.valid, c.err = next()
		c.has = true
	}
	return c.val, c.valid, c.err
}

func (c *peekCache[T]) take() (T, bool, error) {
	v, ok, err := c.val, c.valid, c.err
	c.has = false
	var zero T
	c.val = zero
	return v, ok, err
}

// PeekCache exposes the pre-fetch-and-cache helper used by every concrete
// Pull implementation in pipecraft to satisfy the Peek/Next idempotency
// contract without duplicating the bookkeeping in each operator.
type PeekCache[T any] struct {
	inner peekCache[T]
}

// Peek returns the cached item, fetching it from next if not already
// cached.
func (c *PeekCache[T]) Peek(next func() (T, bool, error)) (T, bool, error) {
	return c.inner.fill(next)
}

// Next returns the cached item if Peek was called since the last Next,
// otherwise calls next directly.
func (c *PeekCache[T]) Next(next func() (T, bool, error)) (T, bool, error) {
	if c.inner.has {
		return c.inner.take()
	}
	return next()
}
