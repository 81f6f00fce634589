package pipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloseAllKeepsLastError(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	c1 := closerFunc(func() error { return errA })
	c2 := closerFunc(func() error { return nil })
	c3 := closerFunc(func() error { return errB })

	err := CloseAll("test.Close", c1, nil, c2, c3)
	require.Error(t, err)
	require.ErrorIs(t, err, errB, "expected last error to win")
}

func TestCloseOnceIdempotent(t *testing.T) {
	var calls int
	var co CloseOnce
	run := func() error { calls++; return nil }
	require.NoError(t, co.Do(run))
	require.NoError(t, co.Do(run))
	require.Equal(t, 1, calls)
}

func TestAtomicProgressMonotonic(t *testing.T) {
	var p AtomicProgress
	p.Set(0.5)
	p.Set(0.2) // must not regress
	require.Equal(t, 0.5, p.Get())
	p.Set(0.9)
	require.Equal(t, 0.9, p.Get())
}

func TestTerminalGuardFiresOnce(t *testing.T) {
	var doneCalls, errCalls int
	l := FuncListener[int]{
		Next:  func(int) {},
		Done:  func() { doneCalls++ },
		Error: func(error) { errCalls++ },
	}
	g := NewTerminalGuard[int](l)
	g.OnDone()
	g.OnError(errors.New("late"))
	g.OnDone()
	require.Equal(t, 1, doneCalls)
	require.Equal(t, 0, errCalls)
	require.True(t, g.Fired())
}

type closerFunc func() error

func (f closerFunc) Start() error      { return nil }
func (f closerFunc) Close() error      { return f() }
func (f closerFunc) Progress() float64 { return 1 }
