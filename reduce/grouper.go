package reduce

import (
	"io"
	"os"
	"strconv"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/shard"
)

// Grouper uses the same hash-partitioning machinery as HashReductor, but
// instead of folding each group into one output it re-emits every item of
// a group as a contiguous run — the output is ordered by group, not by
// input order, so a downstream sequence operator (ListReductor,
// SequenceReductor) sees contiguous groups.
type Grouper[T any, K comparable] struct {
	upstream       pipe.Pull[T]
	discriminator  func(T) K
	factory        codec.Factory[T]
	keyBytes       func(K) []byte
	partitionCount int
	tempDir        string

	sharder *shard.SharderByHash[T]
	pending []T
	cache   pipe.PeekCache[T]
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

func NewGrouper[T any, K comparable](upstream pipe.Pull[T], discriminator func(T) K, factory codec.Factory[T], keyBytes func(K) []byte, partitionCount int, dir string) *Grouper[T, K] {
	return &Grouper[T, K]{upstream: upstream, discriminator: discriminator, factory: factory, keyBytes: keyBytes, partitionCount: partitionCount, tempDir: dir}
}

func (g *Grouper[T, K]) Start() error {
	classifyKeyFunc := func(v T) []byte { return g.keyBytes(g.discriminator(v)) }
	g.sharder = shard.NewSharderByHash(g.upstream, g.factory, classifyKeyFunc, g.partitionCount, g.tempDir)
	if err := g.sharder.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "grouper.Start", err)
	}

	byIndex := make(map[string]string, len(g.sharder.Shards()))
	for _, sf := range g.sharder.Shards() {
		byIndex[sf.Key] = sf.Path
	}

	for idx := 0; idx < g.partitionCount; idx++ {
		path, ok := byIndex[strconv.Itoa(idx)]
		if !ok {
			continue
		}
		runs, err := g.groupBucket(path)
		if err != nil {
			return pipe.NewError(pipe.KindIO, "grouper.Start", err)
		}
		g.pending = append(g.pending, runs...)
	}
	g.prog.Set(1)
	return nil
}

func (g *Grouper[T, K]) groupBucket(path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	groups := map[K][]T{}
	dec := g.factory.Decoder()
	for {
		v, err := dec.Decode(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		key := g.discriminator(v)
		groups[key] = append(groups[key], v)
	}

	out := make([]T, 0)
	for _, run := range groups {
		out = append(out, run...)
	}
	return out, nil
}

func (g *Grouper[T, K]) rawNext() (T, bool, error) {
	if len(g.pending) == 0 {
		var zero T
		return zero, false, nil
	}
	v := g.pending[0]
	g.pending = g.pending[1:]
	return v, true, nil
}

func (g *Grouper[T, K]) Next() (T, bool, error) { return g.cache.Next(g.rawNext) }
func (g *Grouper[T, K]) Peek() (T, bool, error) { return g.cache.Peek(g.rawNext) }

func (g *Grouper[T, K]) Progress() float64 { return g.prog.Get() }

func (g *Grouper[T, K]) Close() error {
	return g.closer.Do(func() error {
		if g.sharder == nil {
			return nil
		}
		if err := g.sharder.Close(); err != nil {
			return pipe.NewError(pipe.KindIO, "grouper.Close", err)
		}
		return nil
	})
}
