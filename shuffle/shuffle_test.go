package shuffle

import (
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipecraft/codec/gobcodec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/source"
)

type recordingListener struct {
	mu      sync.Mutex
	items   []int
	done    bool
	errs    []error
	doneCh  chan struct{}
	oncerun sync.Once
}

func newRecordingListener() *recordingListener {
	return &recordingListener{doneCh: make(chan struct{})}
}

func (l *recordingListener) OnNext(v int) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

func (l *recordingListener) OnDone() {
	l.mu.Lock()
	l.done = true
	l.mu.Unlock()
	l.oncerun.Do(func() { close(l.doneCh) })
}

func (l *recordingListener) OnError(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *recordingListener) snapshot() ([]int, bool, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]int(nil), l.items...)
	return out, l.done, append([]error(nil), l.errs...)
}

// TestShuffleThreeWorkersShardByMod reproduces a three-worker shuffle
// where only one worker has data: a source emitting 0..29 sharded by
// item%3. Every peer's downstream must see exactly the items matching
// its own shard id, and every peer must terminate with OnDone.
func TestShuffleThreeWorkersShardByMod(t *testing.T) {
	const n = 3

	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		ln.Close() // release the port; Shuffler.Start re-binds it
	}
	sort.Strings(addrs)

	factory := gobcodec.New[int]()
	shardFn := func(v int) int { return v % n }

	shufflers := make([]*Shuffler[int], n)
	rls := make([]*recordingListener, n)

	for i := 0; i < n; i++ {
		var upstream pipe.Pull[int]
		if i == 0 {
			items := make([]int, 30)
			for j := range items {
				items[j] = j
			}
			upstream = source.Collection(items)
		} else {
			upstream = source.Collection([]int{})
		}

		cfg := Config[int]{
			SelfAddr:             addrs[i],
			PeerAddrs:            addrs,
			ShardFunc:            shardFn,
			Factory:              factory,
			ConnectRetryInterval: 20 * time.Millisecond,
			ConnectRetryWindow:   10 * time.Second,
		}
		s := NewShuffler[int](upstream, cfg)
		rl := newRecordingListener()
		s.SetListener(rl)
		shufflers[i] = s
		rls[i] = rl
	}

	// Start each worker in turn; every Start binds its server and launches
	// its sender, and a sender that dials a peer not yet listening retries
	// until that peer's port is bound.
	for i := 0; i < n; i++ {
		require.NoError(t, shufflers[i].Start(), "worker %d start", i)
	}

	for i := 0; i < n; i++ {
		select {
		case <-rls[i].doneCh:
		case <-time.After(30 * time.Second):
			t.Fatalf("worker %d never reached done", i)
		}
	}

	for i := 0; i < n; i++ {
		items, done, errs := rls[i].snapshot()
		require.True(t, done, "worker %d expected done", i)
		require.Empty(t, errs, "worker %d unexpected errors", i)
		sort.Ints(items)
		var want []int
		for x := 0; x < 30; x++ {
			if x%n == i {
				want = append(want, x)
			}
		}
		require.Equal(t, want, items, "worker %d", i)
	}

	for i := 0; i < n; i++ {
		require.NoError(t, shufflers[i].Close(), "worker %d close", i)
	}
}
