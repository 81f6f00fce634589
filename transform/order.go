package transform

import "github.com/gosuda/pipecraft/pipe"

// OrderValidation raises ErrOutOfOrder the moment upstream produces an
// item that regresses relative to the previous one under cmp.
type OrderValidation[T any] struct {
	upstream pipe.Pull[T]
	cmp      func(a, b T) int
	hasPrev  bool
	prev     T
	cache    pipe.PeekCache[T]
	closer   pipe.CloseOnce
}

// NewOrderValidation wraps upstream, checking cmp(prev, next) <= 0 at
// every step.
func NewOrderValidation[T any](upstream pipe.Pull[T], cmp func(a, b T) int) *OrderValidation[T] {
	return &OrderValidation[T]{upstream: upstream, cmp: cmp}
}

func (o *OrderValidation[T]) Start() error { return o.upstream.Start() }

func (o *OrderValidation[T]) rawNext() (T, bool, error) {
	var zero T
	v, ok, err := o.upstream.Next()
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	if o.hasPrev && o.cmp(o.prev, v) > 0 {
		return zero, false, pipe.NewError(pipe.KindOutOfOrder, "ordervalidation.Next", pipe.ErrOutOfOrder)
	}
	o.prev = v
	o.hasPrev = true
	return v, true, nil
}

func (o *OrderValidation[T]) Next() (T, bool, error) { return o.cache.Next(o.rawNext) }
func (o *OrderValidation[T]) Peek() (T, bool, error) { return o.cache.Peek(o.rawNext) }
func (o *OrderValidation[T]) Progress() float64      { return o.upstream.Progress() }

func (o *OrderValidation[T]) Close() error {
	return o.closer.Do(o.upstream.Close)
}
