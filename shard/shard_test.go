package shard_test

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipecraft/codec/gobcodec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/shard"
)

// sliceSource is a minimal in-memory Pull[T] used only by these tests;
// the framework's own source package ships a richer equivalent.
type sliceSource[T any] struct {
	items []T
	pos   int
}

func newSliceSource[T any](items []T) *sliceSource[T] {
	return &sliceSource[T]{items: items}
}

func (s *sliceSource[T]) Start() error { return nil }
func (s *sliceSource[T]) Next() (T, bool, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false, nil
	}
	v := s.items[s.pos]
	s.pos++
	return v, true, nil
}
func (s *sliceSource[T]) Peek() (T, bool, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false, nil
	}
	return s.items[s.pos], true, nil
}
func (s *sliceSource[T]) Progress() float64 {
	if len(s.items) == 0 {
		return 1
	}
	return float64(s.pos) / float64(len(s.items))
}
func (s *sliceSource[T]) Close() error { return nil }

func drain[T any](t *testing.T, p interface {
	Next() (T, bool, error)
}) []T {
	t.Helper()
	var out []T
	for {
		v, ok, err := p.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

func TestExternalSortOrdersAcrossRuns(t *testing.T) {
	input := []int{9, 3, 7, 1, 8, 2, 6, 4, 0, 5, 42, -3, 17}
	src := newSliceSource(input)
	factory := gobcodec.New[int]()
	cmp := func(a, b int) int { return a - b }

	s := shard.NewExternalSort(src, cmp, 4, shard.FileEngine(factory), "")
	require.NoError(t, s.Start())
	defer s.Close()

	got := drain[int](t, s)
	require.Len(t, got, len(input))
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i], "index %d", i)
	}
	sumIn, sumOut := 0, 0
	for _, v := range input {
		sumIn += v
	}
	for _, v := range got {
		sumOut += v
	}
	require.Equal(t, sumIn, sumOut, "sort dropped or duplicated items")
}

func TestExternalSortEmptyInput(t *testing.T) {
	src := newSliceSource[int](nil)
	s := shard.NewExternalSort(src, func(a, b int) int { return a - b }, 4, shard.FileEngine(gobcodec.New[int]()), "")
	require.NoError(t, s.Start())
	defer s.Close()
	_, ok, err := s.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExternalSortPebbleEngine(t *testing.T) {
	input := []int{5, 2, 8, 1, 9, 0, 3}
	src := newSliceSource(input)
	factory := gobcodec.New[int]()
	keyFunc := func(v int) []byte {
		// fixed-width big-endian so lexicographic byte order matches
		// numeric order for small non-negative ints used in this test
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
	engine := shard.NewPebbleEngine(factory, keyFunc)
	s := shard.NewExternalSort(src, func(a, b int) int { return a - b }, 3, engine, "")
	require.NoError(t, s.Start())
	defer s.Close()

	got := drain[int](t, s)
	require.Len(t, got, len(input))
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i], "index %d", i)
	}
}

func TestSharderByHashRoundTrip(t *testing.T) {
	input := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		input = append(input, "key-"+strconv.Itoa(i))
	}
	src := newSliceSource(input)
	factory := gobcodec.New[string]()
	keyFunc := func(v string) []byte { return []byte(v) }

	s := shard.NewSharderByHash(src, factory, keyFunc, 8, "")
	require.NoError(t, s.Start())
	defer s.Close()

	require.Equal(t, 8, s.ShardCount())

	counts := s.Counts()
	var total int64
	for _, c := range counts {
		total += c
	}
	require.EqualValues(t, len(input), total)

	shards := s.Shards()
	require.NotEmpty(t, shards)
	require.LessOrEqual(t, len(shards), 8)

	decoder := factory.Decoder()
	var readBack int
	for _, sf := range shards {
		f, err := os.Open(sf.Path)
		require.NoError(t, err)
		for {
			_, err := decoder.Decode(f)
			if err != nil {
				break
			}
			readBack++
		}
		f.Close()
	}
	require.Equal(t, len(input), readBack)
}

func TestSharderBySeqAndByItem(t *testing.T) {
	type kv struct{ Key, Val string }
	input := []kv{
		{"a", "1"}, {"a", "2"}, {"b", "3"}, {"b", "4"}, {"c", "5"},
	}
	src := newSliceSource(input)
	factory := gobcodec.New[kv]()
	classify := func(v kv) string { return v.Key }

	seq := shard.NewSharderBySeq(src, factory, classify, "")
	require.NoError(t, seq.Start())
	defer seq.Close()
	require.Len(t, seq.Shards(), 3)
	counts := seq.Counts()
	require.Equal(t, int64(2), counts["a"])
	require.Equal(t, int64(2), counts["b"])
	require.Equal(t, int64(1), counts["c"])

	src2 := newSliceSource([]kv{
		{"a", "1"}, {"b", "2"}, {"a", "3"}, {"b", "4"},
	})
	item := shard.NewSharderByItem(src2, factory, classify, "")
	require.NoError(t, item.Start())
	defer item.Close()
	itemCounts := item.Counts()
	require.Equal(t, int64(2), itemCounts["a"], "non-contiguous keys must not overwrite")
	require.Equal(t, int64(2), itemCounts["b"], "non-contiguous keys must not overwrite")
}

func TestIntermediateSharderByItemPassesThrough(t *testing.T) {
	input := []int{1, 2, 3, 4, 5, 6}
	src := newSliceSource(input)
	factory := gobcodec.New[int]()
	keyFunc := func(v int) []byte { return []byte{byte(v % 3)} }

	inter := shard.NewIntermediateSharderByHash(src, factory, keyFunc, 3, "")
	require.NoError(t, inter.Start())
	defer inter.Close()

	got := drain[int](t, inter)
	require.Equal(t, input, got, "passthrough must not reorder items")

	var total int64
	for _, c := range inter.Counts() {
		total += c
	}
	require.EqualValues(t, len(input), total)
}

func TestBaseImplementsPullInterface(t *testing.T) {
	var _ pipe.Pull[int] = newSliceSource[int](nil)
}
