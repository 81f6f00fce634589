package transform_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/transform"
)

type sliceSource[T any] struct {
	items []T
	pos   int
}

func newSliceSource[T any](items []T) *sliceSource[T] { return &sliceSource[T]{items: items} }

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

// erroringSource yields items then a terminal error.
type erroringSource struct {
	items []int
	pos   int
	err   error
}

func (s *erroringSource) Start() error { return nil }
func (s *erroringSource) Next() (int, bool, error) {
	if s.pos < len(s.items) {
		v := s.items[s.pos]
		s.pos++
		return v, true, nil
	}
	return 0, false, s.err
}
func (s *erroringSource) Peek() (int, bool, error) {
	if s.pos < len(s.items) {
		return s.items[s.pos], true, nil
	}
	return 0, false, s.err
}
func (s *erroringSource) Progress() float64 { return 0 }
func (s *erroringSource) Close() error      { return nil }

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

func TestMapDoublesEachItem(t *testing.T) {
	m := transform.NewMap[int, int](newSliceSource([]int{1, 2, 3}), func(v int) int { return v * 2 })
	require.NoError(t, m.Start())
	defer m.Close()
	got := drain[int](t, m)
	require.Equal(t, []int{2, 4, 6}, got)
}

func TestFilterKeepsOnlyMatching(t *testing.T) {
	f := transform.NewFilter(newSliceSource([]int{1, 2, 3, 4, 5, 6}), func(v int) bool { return v%2 == 0 })
	require.NoError(t, f.Start())
	defer f.Close()
	got := drain[int](t, f)
	require.Equal(t, []int{2, 4, 6}, got)
}

func TestHeadTruncatesAtN(t *testing.T) {
	h := transform.NewHead[int](newSliceSource([]int{1, 2, 3, 4, 5}), 3)
	require.NoError(t, h.Start())
	defer h.Close()
	got := drain[int](t, h)
	require.Equal(t, []int{1, 2, 3}, got)
	require.Equal(t, 1.0, h.Progress())
}

func TestHeadSuppressesErrorAfterNItems(t *testing.T) {
	src := &erroringSource{items: []int{1, 2, 3, 4}, err: errors.New("boom after item 4")}
	h := transform.NewHead[int](src, 2)
	require.NoError(t, h.Start())
	defer h.Close()
	got := drain[int](t, h)
	require.Equal(t, []int{1, 2}, got)
}

func TestConcatRunsSuppliersInOrder(t *testing.T) {
	built := []int{}
	c := transform.NewConcat[int](
		func() (pipe.Pull[int], error) { built = append(built, 0); return newSliceSource([]int{1, 2}), nil },
		func() (pipe.Pull[int], error) { built = append(built, 1); return newSliceSource([]int{3, 4}), nil },
	)
	require.NoError(t, c.Start())
	defer c.Close()
	got := drain[int](t, c)
	require.Equal(t, []int{1, 2, 3, 4}, got)
	require.Len(t, built, 2, "both suppliers must be invoked")
}

func TestConcatOnlyBuildsLazily(t *testing.T) {
	calls := 0
	c := transform.NewConcat[int](
		func() (pipe.Pull[int], error) { calls++; return newSliceSource([]int{1}), nil },
		func() (pipe.Pull[int], error) { calls++; return newSliceSource([]int{2}), nil },
	)
	require.NoError(t, c.Start())
	defer c.Close()
	require.Equal(t, 0, calls, "before first Next")
	c.Next()
	require.Equal(t, 1, calls, "after first Next")
}

func TestCallbackInvokesOnItemAndOnDoneOnce(t *testing.T) {
	var sum int
	doneCount := 0
	cb := transform.NewCallback[int](newSliceSource([]int{1, 2, 3}),
		func(v int) { sum += v },
		func() { doneCount++ })
	require.NoError(t, cb.Start())
	defer cb.Close()
	drain[int](t, cb)
	cb.Next()
	cb.Next()
	require.Equal(t, 6, sum)
	require.Equal(t, 1, doneCount)
}

func TestTimeoutExpiresAgainstSlowUpstream(t *testing.T) {
	blocking := &blockingSource{release: make(chan struct{})}
	to := transform.NewTimeout[int](blocking, 20*time.Millisecond)
	require.NoError(t, to.Start())
	defer func() {
		close(blocking.release)
		to.Close()
	}()
	_, _, err := to.Next()
	require.Error(t, err)
	require.True(t, pipe.IsKind(err, pipe.KindTimeout))
}

type blockingSource struct {
	release chan struct{}
}

func (b *blockingSource) Start() error { return nil }
func (b *blockingSource) Next() (int, bool, error) {
	<-b.release
	return 0, false, nil
}
func (b *blockingSource) Peek() (int, bool, error) { return 0, false, nil }
func (b *blockingSource) Progress() float64        { return 0 }
func (b *blockingSource) Close() error              { return nil }

func TestOrderValidationRaisesOnRegression(t *testing.T) {
	ov := transform.NewOrderValidation[int](newSliceSource([]int{1, 2, 5, 3}), func(a, b int) int { return a - b })
	require.NoError(t, ov.Start())
	defer ov.Close()
	for i := 0; i < 3; i++ {
		_, _, err := ov.Next()
		require.NoError(t, err, "item %d", i)
	}
	_, _, err := ov.Next()
	require.Error(t, err)
	require.True(t, pipe.IsKind(err, pipe.KindOutOfOrder))
}
