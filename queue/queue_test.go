package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutTakeFIFOOrder(t *testing.T) {
	q := New[int](10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	for i := 0; i < 5; i++ {
		v, err := q.Take(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestOfferFailsWhenFull(t *testing.T) {
	q := New[int](2)
	require.True(t, q.Offer(1))
	require.True(t, q.Offer(2))
	assert.False(t, q.Offer(3), "expected offer to fail once queue is full")
}

func TestPollReturnsFalseWhenEmpty(t *testing.T) {
	q := New[int](2)
	_, ok := q.Poll()
	assert.False(t, ok)
}

func TestPutBlocksUntilSpaceFreed(t *testing.T) {
	q := New[int](1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))

	putReturned := make(chan struct{})
	go func() {
		_ = q.Put(ctx, 2)
		close(putReturned)
	}()

	select {
	case <-putReturned:
		t.Fatal("expected second put to block while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := q.Take(ctx)
	require.NoError(t, err)

	select {
	case <-putReturned:
	case <-time.After(time.Second):
		t.Fatal("put never unblocked after space freed")
	}
}

func TestTakeUnblocksOnClose(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.Equal(t, ErrClosed, err)
	case <-time.After(time.Second):
		t.Fatal("take never unblocked after close")
	}
}

func TestCloseDrainsBufferedItemsFirst(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 42))
	q.Close()

	v, err := q.Take(ctx)
	require.NoError(t, err, "expected buffered item before ErrClosed")
	assert.Equal(t, 42, v)

	_, err = q.Take(ctx)
	assert.Equal(t, ErrClosed, err)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New[int](8)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < n/4; i++ {
				_ = q.Put(ctx, base*1000+i)
			}
		}(p)
	}

	received := make(chan int, n)
	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for i := 0; i < n/4; i++ {
				v, err := q.Take(ctx)
				if err != nil {
					t.Errorf("take: %v", err)
					return
				}
				received <- v
			}
		}()
	}

	wg.Wait()
	cwg.Wait()
	close(received)

	count := 0
	for range received {
		count++
	}
	assert.Equal(t, n, count)
}
