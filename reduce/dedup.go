package reduce

import (
	"io"
	"os"
	"strconv"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/shard"
)

// Dedup is disk-backed exact dedup: it hash-partitions the upstream into
// partitionCount buckets, then within each bucket keeps a set of items
// seen so far and emits only the first occurrence of each. Output is
// therefore a set: its size equals the input's distinct count.
type Dedup[T comparable] struct {
	upstream       pipe.Pull[T]
	factory        codec.Factory[T]
	keyBytes       func(T) []byte
	partitionCount int
	tempDir        string

	sharder *shard.SharderByHash[T]
	pending []T
	cache   pipe.PeekCache[T]
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

func NewDedup[T comparable](upstream pipe.Pull[T], factory codec.Factory[T], keyBytes func(T) []byte, partitionCount int, dir string) *Dedup[T] {
	return &Dedup[T]{upstream: upstream, factory: factory, keyBytes: keyBytes, partitionCount: partitionCount, tempDir: dir}
}

func (d *Dedup[T]) Start() error {
	d.sharder = shard.NewSharderByHash(d.upstream, d.factory, d.keyBytes, d.partitionCount, d.tempDir)
	if err := d.sharder.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "dedup.Start", err)
	}

	byIndex := make(map[string]string, len(d.sharder.Shards()))
	for _, sf := range d.sharder.Shards() {
		byIndex[sf.Key] = sf.Path
	}

	for idx := 0; idx < d.partitionCount; idx++ {
		path, ok := byIndex[strconv.Itoa(idx)]
		if !ok {
			continue
		}
		uniq, err := d.dedupBucket(path)
		if err != nil {
			return pipe.NewError(pipe.KindIO, "dedup.Start", err)
		}
		d.pending = append(d.pending, uniq...)
	}
	d.prog.Set(1)
	return nil
}

func (d *Dedup[T]) dedupBucket(path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := map[T]struct{}{}
	var uniq []T
	dec := d.factory.Decoder()
	for {
		v, err := dec.Decode(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	return uniq, nil
}

func (d *Dedup[T]) rawNext() (T, bool, error) {
	if len(d.pending) == 0 {
		var zero T
		return zero, false, nil
	}
	v := d.pending[0]
	d.pending = d.pending[1:]
	return v, true, nil
}

func (d *Dedup[T]) Next() (T, bool, error) { return d.cache.Next(d.rawNext) }
func (d *Dedup[T]) Peek() (T, bool, error) { return d.cache.Peek(d.rawNext) }

func (d *Dedup[T]) Progress() float64 { return d.prog.Get() }

func (d *Dedup[T]) Close() error {
	return d.closer.Do(func() error {
		if d.sharder == nil {
			return nil
		}
		if err := d.sharder.Close(); err != nil {
			return pipe.NewError(pipe.KindIO, "dedup.Close", err)
		}
		return nil
	})
}
