// Package transform provides the stateless, single-pass Pull wrappers
// pipecraft's pipelines compose: Map, Filter, Head, Concat, Callback,
// Timeout, and OrderValidation.
package transform

import "github.com/gosuda/pipecraft/pipe"

// Map applies f to every item of upstream.
type Map[T, U any] struct {
	upstream pipe.Pull[T]
	f        func(T) U
	cache    pipe.PeekCache[U]
	closer   pipe.CloseOnce
}

// NewMap wraps upstream, transforming each item with f.
func NewMap[T, U any](upstream pipe.Pull[T], f func(T) U) *Map[T, U] {
	return &Map[T, U]{upstream: upstream, f: f}
}

func (m *Map[T, U]) Start() error { return m.upstream.Start() }

func (m *Map[T, U]) rawNext() (U, bool, error) {
	var zero U
	v, ok, err := m.upstream.Next()
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	return m.f(v), true, nil
}

func (m *Map[T, U]) Next() (U, bool, error) { return m.cache.Next(m.rawNext) }
func (m *Map[T, U]) Peek() (U, bool, error) { return m.cache.Peek(m.rawNext) }
func (m *Map[T, U]) Progress() float64      { return m.upstream.Progress() }
func (m *Map[T, U]) Close() error {
	return m.closer.Do(m.upstream.Close)
}

// Filter skips items until p(x) holds, forwarding only the ones that pass.
type Filter[T any] struct {
	upstream pipe.Pull[T]
	p        func(T) bool
	cache    pipe.PeekCache[T]
	closer   pipe.CloseOnce
}

// NewFilter wraps upstream, forwarding only items for which p returns true.
func NewFilter[T any](upstream pipe.Pull[T], p func(T) bool) *Filter[T] {
	return &Filter[T]{upstream: upstream, p: p}
}

func (f *Filter[T]) Start() error { return f.upstream.Start() }

func (f *Filter[T]) rawNext() (T, bool, error) {
	var zero T
	for {
		v, ok, err := f.upstream.Next()
		if err != nil {
			return zero, false, err
		}
		if !ok {
			return zero, false, nil
		}
		if f.p(v) {
			return v, true, nil
		}
	}
}

func (f *Filter[T]) Next() (T, bool, error) { return f.cache.Next(f.rawNext) }
func (f *Filter[T]) Peek() (T, bool, error) { return f.cache.Peek(f.rawNext) }
func (f *Filter[T]) Progress() float64      { return f.upstream.Progress() }
func (f *Filter[T]) Close() error {
	return f.closer.Do(f.upstream.Close)
}

// Head emits at most n items from upstream. Once n items have been
// forwarded, upstream is never called again, which has the effect of
// suppressing any error upstream would have raised strictly after the
// n-th item.
type Head[T any] struct {
	upstream pipe.Pull[T]
	n        int
	count    int
	cache    pipe.PeekCache[T]
	closer   pipe.CloseOnce
	prog     pipe.AtomicProgress
}

// NewHead wraps upstream, truncating it to its first n items.
func NewHead[T any](upstream pipe.Pull[T], n int) *Head[T] {
	return &Head[T]{upstream: upstream, n: n}
}

func (h *Head[T]) Start() error { return h.upstream.Start() }

func (h *Head[T]) rawNext() (T, bool, error) {
	var zero T
	if h.count >= h.n {
		h.prog.Set(1)
		return zero, false, nil
	}
	v, ok, err := h.upstream.Next()
	if err != nil {
		return zero, false, err
	}
	if !ok {
		h.prog.Set(1)
		return zero, false, nil
	}
	h.count++
	if h.n > 0 {
		h.prog.Set(float64(h.count) / float64(h.n))
	}
	return v, true, nil
}

func (h *Head[T]) Next() (T, bool, error) { return h.cache.Next(h.rawNext) }
func (h *Head[T]) Peek() (T, bool, error) { return h.cache.Peek(h.rawNext) }
func (h *Head[T]) Progress() float64      { return h.prog.Get() }
func (h *Head[T]) Close() error {
	return h.closer.Do(h.upstream.Close)
}

// Callback invokes onItem for every item that passes through, and onDone
// (if set) exactly once when upstream is exhausted.
type Callback[T any] struct {
	upstream   pipe.Pull[T]
	onItem     func(T)
	onDone     func()
	doneCalled bool
	cache      pipe.PeekCache[T]
	closer     pipe.CloseOnce
}

// NewCallback wraps upstream with side-effecting hooks. Either hook may be
// nil.
func NewCallback[T any](upstream pipe.Pull[T], onItem func(T), onDone func()) *Callback[T] {
	return &Callback[T]{upstream: upstream, onItem: onItem, onDone: onDone}
}

func (c *Callback[T]) Start() error { return c.upstream.Start() }

func (c *Callback[T]) rawNext() (T, bool, error) {
	var zero T
	v, ok, err := c.upstream.Next()
	if err != nil {
		return zero, false, err
	}
	if !ok {
		if !c.doneCalled {
			c.doneCalled = true
			if c.onDone != nil {
				c.onDone()
			}
		}
		return zero, false, nil
	}
	if c.onItem != nil {
		c.onItem(v)
	}
	return v, true, nil
}

func (c *Callback[T]) Next() (T, bool, error) { return c.cache.Next(c.rawNext) }
func (c *Callback[T]) Peek() (T, bool, error) { return c.cache.Peek(c.rawNext) }
func (c *Callback[T]) Progress() float64      { return c.upstream.Progress() }
func (c *Callback[T]) Close() error {
	return c.closer.Do(c.upstream.Close)
}
