package adapter_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipecraft/adapter"
	"github.com/gosuda/pipecraft/pipe"
)

// testPush emits 0..n-1 asynchronously, then OnDone, unless closed first.
type testPush struct {
	n        int
	listener pipe.Listener[int]
	prog     pipe.AtomicProgress
	closeCh  chan struct{}
	closer   pipe.CloseOnce
}

func newTestPush(n int) *testPush {
	return &testPush{n: n, closeCh: make(chan struct{})}
}

func (p *testPush) SetListener(l pipe.Listener[int]) { p.listener = l }

func (p *testPush) Start() error {
	go func() {
		for i := 0; i < p.n; i++ {
			select {
			case <-p.closeCh:
				return
			default:
			}
			p.listener.OnNext(i)
			p.prog.Set(float64(i+1) / float64(p.n))
		}
		p.listener.OnDone()
	}()
	return nil
}

func (p *testPush) Progress() float64 { return p.prog.Get() }

func (p *testPush) Close() error {
	return p.closer.Do(func() error {
		close(p.closeCh)
		return nil
	})
}

func TestAsyncToSyncCompletion(t *testing.T) {
	push := newTestPush(100)
	a := adapter.NewAsyncToSync[int](push, 10)
	require.NoError(t, a.Start())
	defer a.Close()

	var got []int
	for {
		v, ok, err := a.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1.0, a.Progress())
}

func TestAsyncToSyncErrorRaisedOnce(t *testing.T) {
	push := &manualPush{}
	a := adapter.NewAsyncToSync[int](push, 2)
	require.NoError(t, a.Start())
	defer a.Close()
	push.listener.OnError(errors.New("boom"))

	_, _, err := a.Next()
	require.Error(t, err)
	for i := 0; i < 3; i++ {
		_, ok, err := a.Next()
		require.NoError(t, err, "item %d", i)
		require.False(t, ok, "item %d", i)
	}
}

type manualPush struct {
	listener pipe.Listener[int]
	prog     pipe.AtomicProgress
	closer   pipe.CloseOnce
}

func (p *manualPush) SetListener(l pipe.Listener[int]) { p.listener = l }
func (p *manualPush) Start() error                     { return nil }
func (p *manualPush) Progress() float64                { return p.prog.Get() }
func (p *manualPush) Close() error                     { return p.closer.Do(func() error { return nil }) }

func TestAsyncToSyncPeekIdempotent(t *testing.T) {
	push := newTestPush(2)
	a := adapter.NewAsyncToSync[int](push, 4)
	require.NoError(t, a.Start())
	defer a.Close()
	v1, _, _ := a.Peek()
	v2, _, _ := a.Peek()
	require.Equal(t, v1, v2)
}

// infiniteSource never ends; used to exercise SyncToAsync cancellation.
type infiniteSource struct {
	i    atomic.Int64
	prog pipe.AtomicProgress
}

func (s *infiniteSource) Start() error { return nil }
func (s *infiniteSource) Next() (int, bool, error) {
	return int(s.i.Add(1)), true, nil
}
func (s *infiniteSource) Peek() (int, bool, error) { return int(s.i.Load()), true, nil }
func (s *infiniteSource) Progress() float64 { return 0 }
func (s *infiniteSource) Close() error      { return nil }

type collectListener struct {
	mu       sync.Mutex
	count    int
	done     bool
	err      error
	doneOnce int
	errOnce  int
}

func (l *collectListener) OnNext(v int) {
	l.mu.Lock()
	l.count++
	l.mu.Unlock()
}
func (l *collectListener) OnDone() {
	l.mu.Lock()
	l.done = true
	l.doneOnce++
	l.mu.Unlock()
}
func (l *collectListener) OnError(e error) {
	l.mu.Lock()
	l.err = e
	l.errOnce++
	l.mu.Unlock()
}

func TestSyncToAsyncCancellationReturnsPromptly(t *testing.T) {
	pipes := []pipe.Pull[int]{&infiniteSource{}, &infiniteSource{}}
	s := adapter.NewSyncToAsync[int](pipes, 2)
	l := &collectListener{}
	s.SetListener(l)
	require.NoError(t, s.Start())

	time.Sleep(300 * time.Millisecond)

	closeDone := make(chan error, 1)
	go func() { closeDone <- s.Close() }()

	select {
	case err := <-closeDone:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("Close did not return within 30s")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Equal(t, 0, l.doneOnce, "listener notified after external close")
	require.Equal(t, 0, l.errOnce, "listener notified after external close")
}

func TestSyncToAsyncDrainsAllPipesThenDone(t *testing.T) {
	p1 := &sliceSource{items: []int{1, 2, 3}}
	p2 := &sliceSource{items: []int{4, 5}}
	s := adapter.NewSyncToAsync[int]([]pipe.Pull[int]{p1, p2}, 2)
	l := &collectListener{}
	s.SetListener(l)
	require.NoError(t, s.Start())
	defer s.Close()

	deadline := time.After(5 * time.Second)
	for {
		l.mu.Lock()
		done := l.done
		count := l.count
		l.mu.Unlock()
		if done {
			require.Equal(t, 5, count)
			break
		}
		select {
		case <-deadline:
			t.Fatal("listener.OnDone never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type sliceSource struct {
	items []int
	pos   int
}

func (s *sliceSource) Start() error { return nil }
func (s *sliceSource) Next() (int, bool, error) {
	if s.pos >= len(s.items) {
		return 0, false, nil
	}
	v := s.items[s.pos]
	s.pos++
	return v, true, nil
}
func (s *sliceSource) Peek() (int, bool, error) {
	if s.pos >= len(s.items) {
		return 0, false, nil
	}
	return s.items[s.pos], true, nil
}
func (s *sliceSource) Progress() float64 { return float64(s.pos) / float64(len(s.items)) }
func (s *sliceSource) Close() error      { return nil }
