package transform

import "github.com/gosuda/pipecraft/pipe"

// Concat concatenates a lazy list of pull suppliers: each supplier
// constructs (and Start()s) its pipe only when the previous one has been
// fully drained and closed, so suppliers later in the list never run if
// the caller stops consuming early.
type Concat[T any] struct {
	suppliers []func() (pipe.Pull[T], error)
	idx       int
	current   pipe.Pull[T]
	cache     pipe.PeekCache[T]
	closer    pipe.CloseOnce
	prog      pipe.AtomicProgress
}

// NewConcat builds a Concat over suppliers, invoked in order.
func NewConcat[T any](suppliers ...func() (pipe.Pull[T], error)) *Concat[T] {
	return &Concat[T]{suppliers: suppliers}
}

func (c *Concat[T]) Start() error { return nil }

func (c *Concat[T]) rawNext() (T, bool, error) {
	var zero T
	for {
		if c.current == nil {
			if c.idx >= len(c.suppliers) {
				c.prog.Set(1)
				return zero, false, nil
			}
			p, err := c.suppliers[c.idx]()
			if err != nil {
				return zero, false, err
			}
			if err := p.Start(); err != nil {
				return zero, false, err
			}
			c.current = p
		}

		v, ok, err := c.current.Next()
		if err != nil {
			return zero, false, err
		}
		if !ok {
			if err := c.current.Close(); err != nil {
				return zero, false, err
			}
			c.current = nil
			c.idx++
			if len(c.suppliers) > 0 {
				c.prog.Set(float64(c.idx) / float64(len(c.suppliers)))
			}
			continue
		}
		return v, true, nil
	}
}

func (c *Concat[T]) Next() (T, bool, error) { return c.cache.Next(c.rawNext) }
func (c *Concat[T]) Peek() (T, bool, error) { return c.cache.Peek(c.rawNext) }
func (c *Concat[T]) Progress() float64      { return c.prog.Get() }

func (c *Concat[T]) Close() error {
	return c.closer.Do(func() error {
		if c.current != nil {
			return c.current.Close()
		}
		return nil
	})
}
