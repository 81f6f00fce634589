package shard

import (
	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/pipe"
)

// SharderByItem drains upstream during Start, keeping one writer open per
// shard key for the whole pass — unlike SharderBySeq it tolerates an
// unbounded, non-contiguous key set.
type SharderByItem[T any] struct {
	upstream pipe.Pull[T]
	router   *itemRouter[T]
	tempDir  string
	ownDir   bool
	closer   pipe.CloseOnce
	prog     pipe.AtomicProgress
}

// NewSharderByItem builds a SharderByItem. If dir is empty a temp
// directory is created and owned.
func NewSharderByItem[T any](upstream pipe.Pull[T], factory codec.Factory[T], classify func(T) string, dir string) *SharderByItem[T] {
	return &SharderByItem[T]{upstream: upstream, router: newItemRouter(dir, factory, classify), tempDir: dir}
}

func (s *SharderByItem[T]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "sharderbyitem.Start", err)
	}
	if s.tempDir == "" {
		dir, err := NewTempDir("", "pipecraft-sharditem")
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyitem.Start", err)
		}
		s.tempDir = dir
		s.router.dir = dir
		s.ownDir = true
	}
	for {
		v, ok, err := s.upstream.Next()
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyitem.Start", err)
		}
		if !ok {
			break
		}
		if err := s.router.route(v); err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyitem.Start", err)
		}
	}
	if err := s.router.close(); err != nil {
		return pipe.NewError(pipe.KindIO, "sharderbyitem.Start", err)
	}
	s.prog.Set(1)
	return nil
}

// Shards returns the shard files written, in first-seen order.
func (s *SharderByItem[T]) Shards() []ShardFile { return s.router.shards() }

// Counts returns the per-shard-key item counts.
func (s *SharderByItem[T]) Counts() Counts { return s.router.counts }

func (s *SharderByItem[T]) Progress() float64 { return s.prog.Get() }

func (s *SharderByItem[T]) Close() error {
	return s.closer.Do(func() error {
		err := s.upstream.Close()
		if s.ownDir {
			if rmErr := RemoveTempDir(s.tempDir); rmErr != nil && err == nil {
				err = rmErr
			}
		}
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyitem.Close", err)
		}
		return nil
	})
}
