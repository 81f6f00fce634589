package main

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/pipecraft/codec/gobcodec"
	"github.com/gosuda/pipecraft/pipe"
	"github.com/gosuda/pipecraft/shuffle"
	"github.com/gosuda/pipecraft/source"
)

var shuffleDemoItems int

var shuffleDemoCmd = &cobra.Command{
	Use:   "shuffle-demo",
	Short: "Run a three-peer local shuffler exercising the TCP wire protocol",
	RunE:  runShuffleDemo,
}

func init() {
	shuffleDemoCmd.Flags().IntVar(&shuffleDemoItems, "items", 30, "number of integers the first worker emits, sharded by item%3")
}

type collectListener struct {
	mu    sync.Mutex
	items []int
	done  chan struct{}
	err   error
	once  sync.Once
}

func newCollectListener() *collectListener {
	return &collectListener{done: make(chan struct{})}
}

func (l *collectListener) OnNext(v int) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

func (l *collectListener) OnDone() {
	l.once.Do(func() { close(l.done) })
}

func (l *collectListener) OnError(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

func runShuffleDemo(cmd *cobra.Command, args []string) error {
	const n = 3

	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("reserve port: %w", err)
		}
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	sort.Strings(addrs)

	factory := gobcodec.New[int]()
	shardFn := func(v int) int { return v % n }

	shufflers := make([]*shuffle.Shuffler[int], n)
	listeners := make([]*collectListener, n)

	for i := 0; i < n; i++ {
		var upstream pipe.Pull[int]
		if i == 0 {
			items := make([]int, shuffleDemoItems)
			for j := range items {
				items[j] = j
			}
			upstream = source.Collection(items)
		} else {
			upstream = source.Collection([]int{})
		}

		s := shuffle.NewShuffler[int](upstream, shuffle.Config[int]{
			SelfAddr:  addrs[i],
			PeerAddrs: addrs,
			ShardFunc: shardFn,
			Factory:   factory,
		})
		l := newCollectListener()
		s.SetListener(l)
		shufflers[i] = s
		listeners[i] = l
	}

	for i := 0; i < n; i++ {
		if err := shufflers[i].Start(); err != nil {
			return fmt.Errorf("worker %d start: %w", i, err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case <-listeners[i].done:
		case <-time.After(30 * time.Second):
			return fmt.Errorf("worker %d never reached done", i)
		}
	}

	for i := 0; i < n; i++ {
		l := listeners[i]
		l.mu.Lock()
		items := append([]int(nil), l.items...)
		err := l.err
		l.mu.Unlock()
		if err != nil {
			return fmt.Errorf("worker %d: %w", i, err)
		}
		sort.Ints(items)
		log.Info().Int("worker", i).Ints("items", items).Msg("[shuffle-demo] peer received")
	}

	for i := 0; i < n; i++ {
		if err := shufflers[i].Close(); err != nil {
			return fmt.Errorf("worker %d close: %w", i, err)
		}
	}
	return nil
}
