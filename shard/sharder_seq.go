package shard

import (
	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/pipe"
)

// SharderBySeq drains upstream during Start, routing each item to a shard
// file keyed by classify(item), re-using the currently open writer until
// the classifier output changes — a streaming sharder that assumes runs of
// equal keys are contiguous in the upstream. Non-contiguous input is
// undefined behavior: it is not detected or merged.
type SharderBySeq[T any] struct {
	upstream pipe.Pull[T]
	router   *seqRouter[T]
	tempDir  string
	ownDir   bool
	closer   pipe.CloseOnce
	prog     pipe.AtomicProgress
}

// NewSharderBySeq builds a SharderBySeq. If dir is empty a temp directory
// is created and owned.
func NewSharderBySeq[T any](upstream pipe.Pull[T], factory codec.Factory[T], classify func(T) string, dir string) *SharderBySeq[T] {
	return &SharderBySeq[T]{upstream: upstream, router: newSeqRouter(dir, factory, classify), tempDir: dir}
}

func (s *SharderBySeq[T]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "sharderbyseq.Start", err)
	}
	if s.tempDir == "" {
		dir, err := NewTempDir("", "pipecraft-shardseq")
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyseq.Start", err)
		}
		s.tempDir = dir
		s.router.dir = dir
		s.ownDir = true
	}
	for {
		v, ok, err := s.upstream.Next()
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyseq.Start", err)
		}
		if !ok {
			break
		}
		if err := s.router.route(v); err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyseq.Start", err)
		}
	}
	if err := s.router.close(); err != nil {
		return pipe.NewError(pipe.KindIO, "sharderbyseq.Start", err)
	}
	s.prog.Set(1)
	return nil
}

// Shards returns the shard files written, in first-seen order.
func (s *SharderBySeq[T]) Shards() []ShardFile { return s.router.shards() }

// Counts returns the per-shard-key item counts.
func (s *SharderBySeq[T]) Counts() Counts { return s.router.counts }

func (s *SharderBySeq[T]) Progress() float64 { return s.prog.Get() }

func (s *SharderBySeq[T]) Close() error {
	return s.closer.Do(func() error {
		err := s.upstream.Close()
		if s.ownDir {
			if rmErr := RemoveTempDir(s.tempDir); rmErr != nil && err == nil {
				err = rmErr
			}
		}
		if err != nil {
			return pipe.NewError(pipe.KindIO, "sharderbyseq.Close", err)
		}
		return nil
	})
}
