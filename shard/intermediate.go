package shard

import (
	"strconv"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/internal/shardhash"
	"github.com/gosuda/pipecraft/pipe"
)

// IntermediateSharderBySeq re-emits every upstream item downstream after
// writing it to its shard file — SharderBySeq with a disk side effect
// instead of being a terminal drain.
type IntermediateSharderBySeq[T any] struct {
	upstream pipe.Pull[T]
	router   *seqRouter[T]
	tempDir  string
	ownDir   bool
	started  bool
	closer   pipe.CloseOnce
	prog     pipe.AtomicProgress
}

func NewIntermediateSharderBySeq[T any](upstream pipe.Pull[T], factory codec.Factory[T], classify func(T) string, dir string) *IntermediateSharderBySeq[T] {
	return &IntermediateSharderBySeq[T]{upstream: upstream, router: newSeqRouter(dir, factory, classify), tempDir: dir}
}

func (s *IntermediateSharderBySeq[T]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "intermediatesharderbyseq.Start", err)
	}
	if s.tempDir == "" {
		dir, err := NewTempDir("", "pipecraft-intshardseq")
		if err != nil {
			return pipe.NewError(pipe.KindIO, "intermediatesharderbyseq.Start", err)
		}
		s.tempDir = dir
		s.router.dir = dir
		s.ownDir = true
	}
	s.started = true
	return nil
}

func (s *IntermediateSharderBySeq[T]) Next() (T, bool, error) {
	v, ok, err := s.upstream.Next()
	if err != nil {
		var zero T
		return zero, false, pipe.NewError(pipe.KindIO, "intermediatesharderbyseq.Next", err)
	}
	if !ok {
		if cerr := s.router.close(); cerr != nil {
			var zero T
			return zero, false, pipe.NewError(pipe.KindIO, "intermediatesharderbyseq.Next", cerr)
		}
		s.prog.Set(1)
		return v, false, nil
	}
	if err := s.router.route(v); err != nil {
		var zero T
		return zero, false, pipe.NewError(pipe.KindIO, "intermediatesharderbyseq.Next", err)
	}
	return v, true, nil
}

func (s *IntermediateSharderBySeq[T]) Peek() (T, bool, error) {
	return s.upstream.Peek()
}

func (s *IntermediateSharderBySeq[T]) Shards() []ShardFile { return s.router.shards() }
func (s *IntermediateSharderBySeq[T]) Counts() Counts       { return s.router.counts }
func (s *IntermediateSharderBySeq[T]) Progress() float64    { return s.prog.Get() }

func (s *IntermediateSharderBySeq[T]) Close() error {
	return s.closer.Do(func() error {
		err := s.upstream.Close()
		if s.ownDir {
			if rmErr := RemoveTempDir(s.tempDir); rmErr != nil && err == nil {
				err = rmErr
			}
		}
		if err != nil {
			return pipe.NewError(pipe.KindIO, "intermediatesharderbyseq.Close", err)
		}
		return nil
	})
}

// IntermediateSharderByItem is SharderByItem with a pass-through Next.
type IntermediateSharderByItem[T any] struct {
	upstream pipe.Pull[T]
	router   *itemRouter[T]
	tempDir  string
	ownDir   bool
	closer   pipe.CloseOnce
	prog     pipe.AtomicProgress
}

func NewIntermediateSharderByItem[T any](upstream pipe.Pull[T], factory codec.Factory[T], classify func(T) string, dir string) *IntermediateSharderByItem[T] {
	return &IntermediateSharderByItem[T]{upstream: upstream, router: newItemRouter(dir, factory, classify), tempDir: dir}
}

// NewIntermediateSharderByHash is IntermediateSharderByItem specialized to
// a fixed shard count via a strong hash of keyFunc(item).
func NewIntermediateSharderByHash[T any](upstream pipe.Pull[T], factory codec.Factory[T], keyFunc func(T) []byte, n int, dir string) *IntermediateSharderByItem[T] {
	classify := func(v T) string {
		return strconv.Itoa(shardhash.Shard(shardhash.Of(keyFunc(v)), n))
	}
	return NewIntermediateSharderByItem(upstream, factory, classify, dir)
}

func (s *IntermediateSharderByItem[T]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "intermediatesharderbyitem.Start", err)
	}
	if s.tempDir == "" {
		dir, err := NewTempDir("", "pipecraft-intshardhash")
		if err != nil {
			return pipe.NewError(pipe.KindIO, "intermediatesharderbyitem.Start", err)
		}
		s.tempDir = dir
		s.router.dir = dir
		s.ownDir = true
	}
	return nil
}

func (s *IntermediateSharderByItem[T]) Next() (T, bool, error) {
	v, ok, err := s.upstream.Next()
	if err != nil {
		var zero T
		return zero, false, pipe.NewError(pipe.KindIO, "intermediatesharderbyitem.Next", err)
	}
	if !ok {
		if cerr := s.router.close(); cerr != nil {
			var zero T
			return zero, false, pipe.NewError(pipe.KindIO, "intermediatesharderbyitem.Next", cerr)
		}
		s.prog.Set(1)
		return v, false, nil
	}
	if err := s.router.route(v); err != nil {
		var zero T
		return zero, false, pipe.NewError(pipe.KindIO, "intermediatesharderbyitem.Next", err)
	}
	return v, true, nil
}

func (s *IntermediateSharderByItem[T]) Peek() (T, bool, error) { return s.upstream.Peek() }
func (s *IntermediateSharderByItem[T]) Shards() []ShardFile     { return s.router.shards() }
func (s *IntermediateSharderByItem[T]) Counts() Counts          { return s.router.counts }
func (s *IntermediateSharderByItem[T]) Progress() float64       { return s.prog.Get() }

func (s *IntermediateSharderByItem[T]) Close() error {
	return s.closer.Do(func() error {
		err := s.upstream.Close()
		if s.ownDir {
			if rmErr := RemoveTempDir(s.tempDir); rmErr != nil && err == nil {
				err = rmErr
			}
		}
		if err != nil {
			return pipe.NewError(pipe.KindIO, "intermediatesharderbyitem.Close", err)
		}
		return nil
	})
}
