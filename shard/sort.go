package shard

import (
	"container/heap"
	"sort"

	"github.com/gosuda/pipecraft/pipe"
)

// ExternalSort reads an entire upstream Pull[T] into in-memory runs of at
// most runSize items, sorts each run with cmp, writes it to disk via
// Engine, then streams the heap-merged union of all runs in order. Temp
// files are removed on Close.
type ExternalSort[T any] struct {
	upstream pipe.Pull[T]
	cmp      func(a, b T) int
	runSize  int
	engine   Engine[T]

	tempDir string
	ownDir  bool
	runs    []RunReader[T]
	merger  *kMerge[T]
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

// NewExternalSort builds an ExternalSort pipe. If dir is empty, a fresh
// temp directory is created and owned (removed on Close); otherwise dir is
// used as-is and left behind on Close (caller owns it).
func NewExternalSort[T any](upstream pipe.Pull[T], cmp func(a, b T) int, runSize int, engine Engine[T], dir string) *ExternalSort[T] {
	return &ExternalSort[T]{upstream: upstream, cmp: cmp, runSize: runSize, engine: engine, tempDir: dir}
}

func (s *ExternalSort[T]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
	}
	if s.tempDir == "" {
		dir, err := NewTempDir("", "pipecraft-sort")
		if err != nil {
			return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
		}
		s.tempDir = dir
		s.ownDir = true
	}

	runIndex := 0
	for {
		buf := make([]T, 0, s.runSize)
		for len(buf) < s.runSize {
			v, ok, err := s.upstream.Next()
			if err != nil {
				return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
			}
			if !ok {
				break
			}
			buf = append(buf, v)
		}
		if len(buf) == 0 {
			break
		}
		sort.Slice(buf, func(i, j int) bool { return s.cmp(buf[i], buf[j]) < 0 })

		w, err := s.engine.NewRunWriter(s.tempDir, runIndex)
		if err != nil {
			return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
		}
		for _, v := range buf {
			if err := w.Write(v); err != nil {
				return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
			}
		}
		r, err := w.Close()
		if err != nil {
			return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
		}
		s.runs = append(s.runs, r)
		runIndex++
		if len(buf) < s.runSize {
			break
		}
	}

	merger, err := newKMerge(s.runs, s.cmp)
	if err != nil {
		return pipe.NewError(pipe.KindIO, "externalsort.Start", err)
	}
	s.merger = merger
	return nil
}

func (s *ExternalSort[T]) Next() (T, bool, error) {
	v, ok, err := s.merger.next()
	if err != nil {
		var zero T
		return zero, false, pipe.NewError(pipe.KindIO, "externalsort.Next", err)
	}
	if !ok {
		s.prog.Set(1)
	}
	return v, ok, nil
}

func (s *ExternalSort[T]) Peek() (T, bool, error) {
	return s.merger.peek()
}

func (s *ExternalSort[T]) Progress() float64 { return s.prog.Get() }

func (s *ExternalSort[T]) Close() error {
	return s.closer.Do(func() error {
		var closers []pipe.Pipe
		for _, r := range s.runs {
			closers = append(closers, runCloser[T]{r})
		}
		closers = append(closers, pipeCloser{s.upstream.Close})
		err := pipe.CloseAll("externalsort.Close", closers...)
		if s.ownDir {
			if rmErr := RemoveTempDir(s.tempDir); rmErr != nil && err == nil {
				err = pipe.NewError(pipe.KindIO, "externalsort.Close", rmErr)
			}
		}
		return err
	})
}

type runCloser[T any] struct{ r RunReader[T] }

func (c runCloser[T]) Start() error      { return nil }
func (c runCloser[T]) Close() error      { return c.r.Close() }
func (c runCloser[T]) Progress() float64 { return 1 }

type pipeCloser struct{ fn func() error }

func (c pipeCloser) Start() error      { return nil }
func (c pipeCloser) Close() error      { return c.fn() }
func (c pipeCloser) Progress() float64 { return 1 }

// kMerge is a container/heap-based k-way merge over already-sorted
// RunReaders, with idempotent Peek.
type kMerge[T any] struct {
	h     mergeHeap[T]
	cmp   func(a, b T) int
	cache pipe.PeekCache[T]
}

type mergeItem[T any] struct {
	v   T
	src RunReader[T]
}

type mergeHeap[T any] struct {
	items []mergeItem[T]
	cmp   func(a, b T) int
}

func (h mergeHeap[T]) Len() int            { return len(h.items) }
func (h mergeHeap[T]) Less(i, j int) bool  { return h.cmp(h.items[i].v, h.items[j].v) < 0 }
func (h mergeHeap[T]) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap[T]) Push(x interface{}) { h.items = append(h.items, x.(mergeItem[T])) }
func (h *mergeHeap[T]) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

func newKMerge[T any](runs []RunReader[T], cmp func(a, b T) int) (*kMerge[T], error) {
	m := &kMerge[T]{cmp: cmp}
	m.h.cmp = cmp
	for _, r := range runs {
		v, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			heap.Push(&m.h, mergeItem[T]{v: v, src: r})
		}
	}
	return m, nil
}

func (m *kMerge[T]) rawNext() (T, bool, error) {
	if m.h.Len() == 0 {
		var zero T
		return zero, false, nil
	}
	top := heap.Pop(&m.h).(mergeItem[T])
	nv, ok, err := top.src.Next()
	if err != nil {
		return top.v, true, err
	}
	if ok {
		heap.Push(&m.h, mergeItem[T]{v: nv, src: top.src})
	}
	return top.v, true, nil
}

func (m *kMerge[T]) next() (T, bool, error) {
	return m.cache.Next(m.rawNext)
}

func (m *kMerge[T]) peek() (T, bool, error) {
	return m.cache.Peek(m.rawNext)
}
