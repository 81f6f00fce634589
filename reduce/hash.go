package reduce

import (
	"io"
	"os"
	"strconv"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/shard"
)

// HashReductor assumes no order in the upstream. At Start it partitions
// every item into partitionCount shard files by a hash of the
// discriminator key, then for each bucket (in index order) builds an
// in-memory map<key, acc>, folds every item in that bucket, and emits
// Finalize(key, acc) per key. Emission order within a bucket follows the
// map's iteration order. Temp files are removed on Close.
type HashReductor[T any, K comparable, A, O any] struct {
	upstream       pipe.Pull[T]
	cfg            Config[T, K, A, O]
	factory        codec.Factory[T]
	keyBytes       func(K) []byte
	partitionCount int
	tempDir        string

	sharder *shard.SharderByHash[T]
	pending []O
	cache   pipe.PeekCache[O]
	done    bool
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

// NewHashReductor builds a HashReductor. keyBytes must derive a stable
// byte encoding from a discriminator key for hashing; dir, if non-empty,
// is used as-is (caller owns removal) instead of an owned temp directory.
func NewHashReductor[T any, K comparable, A, O any](upstream pipe.Pull[T], cfg Config[T, K, A, O], factory codec.Factory[T], keyBytes func(K) []byte, partitionCount int, dir string) *HashReductor[T, K, A, O] {
	return &HashReductor[T, K, A, O]{upstream: upstream, cfg: cfg, factory: factory, keyBytes: keyBytes, partitionCount: partitionCount, tempDir: dir}
}

func (r *HashReductor[T, K, A, O]) Start() error {
	classifyKeyFunc := func(v T) []byte { return r.keyBytes(r.cfg.Discriminator(v)) }
	r.sharder = shard.NewSharderByHash(r.upstream, r.factory, classifyKeyFunc, r.partitionCount, r.tempDir)
	if err := r.sharder.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "hashreductor.Start", err)
	}

	byIndex := make(map[string]string, len(r.sharder.Shards()))
	for _, sf := range r.sharder.Shards() {
		byIndex[sf.Key] = sf.Path
	}

	for idx := 0; idx < r.partitionCount; idx++ {
		path, ok := byIndex[strconv.Itoa(idx)]
		if !ok {
			continue
		}
		outs, err := r.reduceBucket(path)
		if err != nil {
			return pipe.NewError(pipe.KindIO, "hashreductor.Start", err)
		}
		r.pending = append(r.pending, outs...)
	}
	r.prog.Set(1)
	return nil
}

func (r *HashReductor[T, K, A, O]) reduceBucket(path string) ([]O, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	accs := map[K]A{}
	dec := r.factory.Decoder()
	for {
		v, err := dec.Decode(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		key := r.cfg.Discriminator(v)
		acc, seen := accs[key]
		if !seen {
			acc = r.cfg.Init(key)
		}
		accs[key] = r.cfg.Fold(acc, v)
	}

	out := make([]O, 0, len(accs))
	for key, acc := range accs {
		out = append(out, r.cfg.Finalize(key, acc))
	}
	return out, nil
}

func (r *HashReductor[T, K, A, O]) rawNext() (O, bool, error) {
	if len(r.pending) == 0 {
		var zero O
		return zero, false, nil
	}
	out := r.pending[0]
	r.pending = r.pending[1:]
	return out, true, nil
}

func (r *HashReductor[T, K, A, O]) Next() (O, bool, error) { return r.cache.Next(r.rawNext) }
func (r *HashReductor[T, K, A, O]) Peek() (O, bool, error) { return r.cache.Peek(r.rawNext) }

func (r *HashReductor[T, K, A, O]) Progress() float64 { return r.prog.Get() }

func (r *HashReductor[T, K, A, O]) Close() error {
	return r.closer.Do(func() error {
		if r.sharder == nil {
			return nil
		}
		if err := r.sharder.Close(); err != nil {
			return pipe.NewError(pipe.KindIO, "hashreductor.Close", err)
		}
		return nil
	})
}
