package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipecraft/pipe"
)

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetrier(Policy{InitialDelay: time.Millisecond, Factor: 2, MaxAttempts: 5})

	var attempts int32
	err := r.Do(context.Background(), func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, attempts)
}

func TestRetrierStopsAtMaxAttempts(t *testing.T) {
	r := NewRetrier(Policy{InitialDelay: time.Millisecond, Factor: 2, MaxAttempts: 3})

	var attempts int32
	err := r.Do(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent")
	})
	require.Error(t, err)
	require.EqualValues(t, 3, attempts)
}

func TestRetrierSkipsNonRetryableKind(t *testing.T) {
	r := NewRetrier(Policy{
		InitialDelay:      time.Millisecond,
		MaxAttempts:       5,
		NonRetryableKinds: []pipe.Kind{pipe.KindValidation},
	})

	var attempts int32
	err := r.Do(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return pipe.NewError(pipe.KindValidation, "op", errors.New("bad input"))
	})
	require.Error(t, err)
	require.EqualValues(t, 1, attempts, "a non-retryable kind must stop after a single attempt")
}

func TestRetrierHonorsContextCancellation(t *testing.T) {
	r := NewRetrier(Policy{InitialDelay: 50 * time.Millisecond, Factor: 2, MaxAttempts: 0})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func(ctx context.Context) error {
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, context.Canceled)
}

type inlineExecutor struct {
	submitted int32
}

func (e *inlineExecutor) Submit(task func()) {
	atomic.AddInt32(&e.submitted, 1)
	go task()
}

func TestParallelTaskProcessorRunsAllTasks(t *testing.T) {
	p := NewParallelTaskProcessor[int](4)

	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var sum int64
	err := p.Run(context.Background(), items, func(ctx context.Context, item int) error {
		atomic.AddInt64(&sum, int64(item))
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 36, sum)
}

func TestParallelTaskProcessorCancelsOnFirstFailure(t *testing.T) {
	p := NewParallelTaskProcessor[int](2)

	wantErr := errors.New("boom")
	var started int32
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	err := p.Run(context.Background(), items, func(ctx context.Context, item int) error {
		atomic.AddInt32(&started, 1)
		if item == 0 {
			return wantErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.ErrorIs(t, err, wantErr)
}

func TestParallelTaskProcessorUsesExternalExecutorWithoutShuttingItDown(t *testing.T) {
	exec := &inlineExecutor{}
	p := NewParallelTaskProcessorWithExecutor[int](exec)

	items := []int{1, 2, 3}
	err := p.Run(context.Background(), items, func(ctx context.Context, item int) error {
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, len(items), exec.submitted)

	// The executor must remain usable after Run returns.
	done := make(chan struct{})
	exec.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor unusable after processor returned")
	}
}
