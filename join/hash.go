package join

import (
	"io"
	"os"
	"strconv"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/internal/shardhash"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/shard"
)

// HashJoin is the disk-backed variant for when the right side does not
// fit in memory: it partitions both the left and every right pipe into
// partitionCount buckets by a hash of the join key, then joins each
// bucket in memory with a LookupJoin-style pass, concatenating the
// per-bucket output. Temp files are removed on Close.
type HashJoin[K comparable, L, R any] struct {
	leftPull     pipe.Pull[L]
	rightPulls   []pipe.Pull[R]
	leftKey      func(L) K
	rightKey     func(R) K
	leftFactory  codec.Factory[L]
	rightFactory codec.Factory[R]
	keyBytes     func(K) []byte
	partitions   int
	mode         Mode
	tempDir      string

	leftSharder   *shard.SharderByItem[L]
	rightSharders []*shard.SharderByItem[R]

	pending []Record[K, L, R]
	cache   pipe.PeekCache[Record[K, L, R]]
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

// NewHashJoin builds a HashJoin. keyBytes must derive a stable byte
// encoding from K for hashing, shared by both sides so matching keys
// land in the same bucket index.
func NewHashJoin[K comparable, L, R any](
	left pipe.Pull[L], rights []pipe.Pull[R],
	leftKey func(L) K, rightKey func(R) K,
	leftFactory codec.Factory[L], rightFactory codec.Factory[R],
	keyBytes func(K) []byte, partitions int, mode Mode, dir string,
) *HashJoin[K, L, R] {
	return &HashJoin[K, L, R]{
		leftPull: left, rightPulls: rights,
		leftKey: leftKey, rightKey: rightKey,
		leftFactory: leftFactory, rightFactory: rightFactory,
		keyBytes: keyBytes, partitions: partitions, mode: mode, tempDir: dir,
	}
}

func bucketClassifier[K comparable, V any](keyOf func(V) K, keyBytes func(K) []byte, n int) func(V) string {
	return func(v V) string {
		return strconv.Itoa(shardhash.Shard(shardhash.Of(keyBytes(keyOf(v))), n))
	}
}

func (j *HashJoin[K, L, R]) Start() error {
	leftClassify := bucketClassifier(j.leftKey, j.keyBytes, j.partitions)
	j.leftSharder = shard.NewSharderByItem(j.leftPull, j.leftFactory, leftClassify, j.tempDir)
	if err := j.leftSharder.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "hashjoin.Start", err)
	}

	j.rightSharders = make([]*shard.SharderByItem[R], len(j.rightPulls))
	for i, rp := range j.rightPulls {
		rightClassify := bucketClassifier(j.rightKey, j.keyBytes, j.partitions)
		sh := shard.NewSharderByItem(rp, j.rightFactory, rightClassify, j.tempDir)
		if err := sh.Start(); err != nil {
			return pipe.NewError(pipe.KindIO, "hashjoin.Start", err)
		}
		j.rightSharders[i] = sh
	}

	leftPaths := pathsByIndex(j.leftSharder.Shards())
	rightPaths := make([]map[string]string, len(j.rightSharders))
	for i, sh := range j.rightSharders {
		rightPaths[i] = pathsByIndex(sh.Shards())
	}

	for idx := 0; idx < j.partitions; idx++ {
		recs, err := j.joinBucket(idx, leftPaths, rightPaths)
		if err != nil {
			return pipe.NewError(pipe.KindIO, "hashjoin.Start", err)
		}
		j.pending = append(j.pending, recs...)
	}
	j.prog.Set(1)
	return nil
}

func pathsByIndex(shards []shard.ShardFile) map[string]string {
	out := make(map[string]string, len(shards))
	for _, sf := range shards {
		out[sf.Key] = sf.Path
	}
	return out
}

func (j *HashJoin[K, L, R]) joinBucket(idx int, leftPaths map[string]string, rightPaths []map[string]string) ([]Record[K, L, R], error) {
	key := strconv.Itoa(idx)

	var leftItems []L
	if p, ok := leftPaths[key]; ok {
		items, err := decodeAll(p, j.leftFactory)
		if err != nil {
			return nil, err
		}
		leftItems = items
	}
	hasRight := false
	rightItems := make([][]R, len(rightPaths))
	for i, rp := range rightPaths {
		if p, ok := rp[key]; ok {
			items, err := decodeAll(p, j.rightFactory)
			if err != nil {
				return nil, err
			}
			rightItems[i] = items
			hasRight = true
		}
	}
	if len(leftItems) == 0 && !hasRight {
		return nil, nil
	}

	leftSrc := newBucketSource(leftItems)
	rightSrcs := make([]pipe.Pull[R], len(rightItems))
	for i, items := range rightItems {
		rightSrcs[i] = newBucketSource(items)
	}

	lj := NewLookupJoin(leftSrc, rightSrcs, j.leftKey, j.rightKey, j.mode)
	if err := lj.Start(); err != nil {
		return nil, err
	}
	defer lj.Close()

	var out []Record[K, L, R]
	for {
		rec, ok, err := lj.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeAll[T any](path string, factory codec.Factory[T]) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := factory.Decoder()
	var out []T
	for {
		v, err := dec.Decode(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (j *HashJoin[K, L, R]) rawNext() (Record[K, L, R], bool, error) {
	if len(j.pending) == 0 {
		var zero Record[K, L, R]
		return zero, false, nil
	}
	rec := j.pending[0]
	j.pending = j.pending[1:]
	return rec, true, nil
}

func (j *HashJoin[K, L, R]) Next() (Record[K, L, R], bool, error) { return j.cache.Next(j.rawNext) }
func (j *HashJoin[K, L, R]) Peek() (Record[K, L, R], bool, error) { return j.cache.Peek(j.rawNext) }

func (j *HashJoin[K, L, R]) Progress() float64 { return j.prog.Get() }

func (j *HashJoin[K, L, R]) Close() error {
	return j.closer.Do(func() error {
		closers := make([]pipe.Pipe, 0, 1+len(j.rightSharders))
		if j.leftSharder != nil {
			closers = append(closers, j.leftSharder)
		}
		for _, sh := range j.rightSharders {
			closers = append(closers, sh)
		}
		return pipe.CloseAll("hashjoin.Close", closers...)
	})
}
