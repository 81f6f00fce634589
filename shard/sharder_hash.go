package shard

import (
	"strconv"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/internal/shardhash"
	"github.com/gosuda/pipecraft/pipe"
)

// SharderByHash splits upstream into exactly n shards, deterministically,
// using a strong content hash of keyFunc(item) modulo n.
type SharderByHash[T any] struct {
	upstream pipe.Pull[T]
	n        int
	router   *itemRouter[T]
	tempDir  string
	ownDir   bool
	closer   pipe.CloseOnce
	prog     pipe.AtomicProgress
}

// NewSharderByHash builds a SharderByHash with n shards. If dir is empty a
// temp directory is created and owned.
func NewSharderByHash[T any](upstream pipe.Pull[T], factory codec.Factory[T], keyFunc func(T) []byte, n int, dir string) *SharderByHash[T] {
	classify := func(v T) string {
		return strconv.Itoa(shardhash.Shard(shardhash.Of(keyFunc(v)), n))
	}
	return &SharderByHash[T]{upstream: upstream, n: n, router: newItemRouter(dir, factory, classify), tempDir: dir}
}

func (s *SharderByHash[T]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "sharderbyhash.Start", err)
	}
	if s.tempDir == "" {
		dir, err := NewTempDir("", "pipecraft-shardhash")
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyhash.Start", err)
		}
		s.tempDir = dir
		s.router.dir = dir
		s.ownDir = true
	}
	for {
		v, ok, err := s.upstream.Next()
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyhash.Start", err)
		}
		if !ok {
			break
		}
		if err := s.router.route(v); err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyhash.Start", err)
		}
	}
	if err := s.router.close(); err != nil {
		return pipe.NewError(pipe.KindIO, "sharderbyhash.Start", err)
	}
	s.prog.Set(1)
	return nil
}

// ShardCount returns the fixed number of shards, n.
func (s *SharderByHash[T]) ShardCount() int { return s.n }

// Shards returns the shard files actually written (a shard index with zero
// items never gets a file).
func (s *SharderByHash[T]) Shards() []ShardFile { return s.router.shards() }

// Counts returns the per-shard-index item counts, keyed by the shard
// index's decimal string. Summed, they equal the input count.
func (s *SharderByHash[T]) Counts() Counts { return s.router.counts }

func (s *SharderByHash[T]) Progress() float64 { return s.prog.Get() }

func (s *SharderByHash[T]) Close() error {
	return s.closer.Do(func() error {
		err := s.upstream.Close()
		if s.ownDir {
			if rmErr := RemoveTempDir(s.tempDir); rmErr != nil && err == nil {
				err = rmErr
			}
		}
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyhash.Close", err)
		}
		return nil
	})
}
