// Package source provides the reference Pull sources and push-driven sinks
// the rest of pipecraft is tested against: in-memory slices, generator
// functions, a line reader, and consumer/collection/map/queue/file sinks.
package source

import (
	"bufio"
	"io"

	"github.com/gosuda/pipecraft/pipe"
)

// SliceSource is a Pull[T] over an in-memory slice, the simplest possible
// Source.
type SliceSource[T any] struct {
	items []T
	pos   int
	prog  pipe.AtomicProgress
}

// Collection builds a SliceSource over items. The slice is not copied;
// callers should not mutate it after construction.
func Collection[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) Start() error { return nil }

func (s *SliceSource[T]) Next() (T, bool, error) {
	v, ok, err := s.Peek()
	if ok {
		s.pos++
		if len(s.items) > 0 {
			s.prog.Set(float64(s.pos) / float64(len(s.items)))
		}
	}
	return v, ok, err
}

func (s *SliceSource[T]) Peek() (T, bool, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false, nil
	}
	return s.items[s.pos], true, nil
}

func (s *SliceSource[T]) Progress() float64 {
	if len(s.items) == 0 {
		return 1
	}
	return s.prog.Get()
}

func (s *SliceSource[T]) Close() error { return nil }

// Generator is a Pull[T] that produces f(0), f(1), ... until f returns
// (zero, false) or count items have been produced, whichever comes first.
// A count of 0 or less means unbounded (f's own false return is the only
// stop condition).
type Generator[T any] struct {
	f     func(i int) (T, bool)
	count int
	i     int
	done  bool
	cache pipe.PeekCache[T]
	prog  pipe.AtomicProgress
}

// SeqGen builds a Generator calling f with consecutive indices starting
// at 0, stopping after count calls (count <= 0 means unbounded).
func SeqGen[T any](count int, f func(i int) (T, bool)) *Generator[T] {
	return &Generator[T]{f: f, count: count}
}

func (g *Generator[T]) Start() error { return nil }

func (g *Generator[T]) rawNext() (T, bool, error) {
	var zero T
	if g.done || (g.count > 0 && g.i >= g.count) {
		g.done = true
		g.prog.Set(1)
		return zero, false, nil
	}
	v, ok := g.f(g.i)
	g.i++
	if !ok {
		g.done = true
		g.prog.Set(1)
		return zero, false, nil
	}
	if g.count > 0 {
		g.prog.Set(float64(g.i) / float64(g.count))
	}
	return v, true, nil
}

func (g *Generator[T]) Next() (T, bool, error) { return g.cache.Next(g.rawNext) }
func (g *Generator[T]) Peek() (T, bool, error) { return g.cache.Peek(g.rawNext) }
func (g *Generator[T]) Progress() float64      { return g.prog.Get() }
func (g *Generator[T]) Close() error           { return nil }

// ReaderSource yields one line per Next from r, stripping the trailing
// newline. It does not close r; callers own the underlying reader's
// lifecycle.
type ReaderSource struct {
	sc    *bufio.Scanner
	r     io.Reader
	done  bool
	cache pipe.PeekCache[string]
	prog  pipe.AtomicProgress
}

// NewReaderSource wraps r as a line-oriented Pull[string].
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Start() error {
	s.sc = bufio.NewScanner(s.r)
	s.sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return nil
}

func (s *ReaderSource) rawNext() (string, bool, error) {
	if s.done {
		return "", false, nil
	}
	if !s.sc.Scan() {
		s.done = true
		s.prog.Set(1)
		if err := s.sc.Err(); err != nil {
			return "", false, pipe.NewError(pipe.KindIO, "readersource.Next", err)
		}
		return "", false, nil
	}
	return s.sc.Text(), true, nil
}

func (s *ReaderSource) Next() (string, bool, error) { return s.cache.Next(s.rawNext) }
func (s *ReaderSource) Peek() (string, bool, error) { return s.cache.Peek(s.rawNext) }
func (s *ReaderSource) Progress() float64           { return s.prog.Get() }
func (s *ReaderSource) Close() error                { return nil }
