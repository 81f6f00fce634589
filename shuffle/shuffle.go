// Package shuffle redistributes a pull pipe's items across a fixed set of
// peers over TCP, keyed by a caller-supplied shard function, and exposes
// each peer's share of the combined stream as a push pipe.
package shuffle

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/internal/netutil"
	"github.com/gosuda/pipecraft/pipe"
)

const (
	defaultRetryInterval = 500 * time.Millisecond
	defaultRetryWindow   = 3 * time.Minute
)

// Config describes one worker's participation in a shuffle. PeerAddrs
// lists every worker's address including SelfAddr; workers are sorted
// into a canonical order and a worker's shard id is its position in that
// order, so every peer computes the same assignment independently.
type Config[T any] struct {
	SelfAddr   string
	PeerAddrs  []string
	ListenAddr string

	ShardFunc func(T) int
	Factory   codec.Factory[T]
	Compress  bool

	HighWatermark int64

	ConnectRetryInterval time.Duration
	ConnectRetryWindow   time.Duration
}

func (c *Config[T]) setDefaults() {
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = defaultRetryInterval
	}
	if c.ConnectRetryWindow <= 0 {
		c.ConnectRetryWindow = defaultRetryWindow
	}
	if c.ListenAddr == "" {
		c.ListenAddr = c.SelfAddr
	}
}

// Shuffler reads upstream, sends each item to the peer its ShardFunc
// selects, and emits to its listener every item any peer (including
// itself) sent its way. It implements pipe.Push[T].
type Shuffler[T any] struct {
	cfg       Config[T]
	upstream  pipe.Pull[T]
	peers     []string
	selfIndex int
	listener  *pipe.TerminalGuard[T]

	ln        net.Listener
	srv       *server
	clientMgr *clientManager
	latch     *countdownLatch

	ctx              context.Context
	cancel           context.CancelFunc
	senderDone       chan struct{}
	closedExternally atomic.Bool
	closer           pipe.CloseOnce
}

// NewShuffler builds a Shuffler that consumes upstream. cfg.SelfAddr must
// appear in cfg.PeerAddrs.
func NewShuffler[T any](upstream pipe.Pull[T], cfg Config[T]) *Shuffler[T] {
	cfg.setDefaults()
	peers := append([]string(nil), cfg.PeerAddrs...)
	sort.Strings(peers)
	selfIndex := -1
	for i, p := range peers {
		if p == cfg.SelfAddr {
			selfIndex = i
			break
		}
	}
	return &Shuffler[T]{cfg: cfg, upstream: upstream, peers: peers, selfIndex: selfIndex}
}

// ShardID returns this worker's position in the canonical peer order, or
// -1 if SelfAddr was never found among PeerAddrs.
func (s *Shuffler[T]) ShardID() int { return s.selfIndex }

func (s *Shuffler[T]) SetListener(l pipe.Listener[T]) {
	s.listener = pipe.NewTerminalGuard(l)
}

func (s *Shuffler[T]) Start() error {
	if s.selfIndex < 0 {
		return pipe.NewError(pipe.KindValidation, "shuffle.Start", fmt.Errorf("self address %q not found among peers", s.cfg.SelfAddr))
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return pipe.NewError(pipe.KindIO, "shuffle.Start", err)
	}
	s.ln = netutil.NewNoDelayListener(ln)

	s.latch = newCountdownLatch(len(s.peers) + 1)
	s.clientMgr = newClientManager(s.peers, s.cfg.Compress, s.cfg.ConnectRetryInterval, s.cfg.ConnectRetryWindow, s.cfg.HighWatermark)
	s.srv = newServer(s.ln, s.cfg.Factory, s.cfg.Compress, s.latch, s.listener)

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel

	go s.srv.serve()

	if err := s.upstream.Start(); err != nil {
		_ = s.ln.Close()
		return pipe.NewError(pipe.KindIO, "shuffle.Start", err)
	}

	s.senderDone = make(chan struct{})
	go s.runSender()
	go s.awaitCompletion()

	return nil
}

func (s *Shuffler[T]) runSender() {
	defer close(s.senderDone)
	enc := s.cfg.Factory.Encoder()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		v, ok, err := s.upstream.Next()
		if err != nil {
			s.fail(pipe.NewError(pipe.KindIO, "shuffle.sender", err))
			return
		}
		if !ok {
			break
		}

		peerIdx := s.cfg.ShardFunc(v) % len(s.peers)
		if peerIdx < 0 {
			peerIdx += len(s.peers)
		}

		var buf bytes.Buffer
		if err := enc.Encode(&buf, v); err != nil {
			s.fail(pipe.NewError(pipe.KindIO, "shuffle.sender", err))
			return
		}
		if err := s.clientMgr.send(s.ctx, 0, peerIdx, buf.Bytes()); err != nil {
			s.fail(pipe.NewError(pipe.KindIO, "shuffle.sender", err))
			return
		}
	}

	if err := s.clientMgr.doneAll(0); err != nil {
		s.fail(pipe.NewError(pipe.KindIO, "shuffle.sender", err))
		return
	}
	s.latch.decrement()
}

func (s *Shuffler[T]) fail(err error) {
	s.listener.OnError(err)
	s.cancel()
}

func (s *Shuffler[T]) awaitCompletion() {
	select {
	case <-s.latch.Wait():
		if !s.closedExternally.Load() {
			s.listener.OnDone()
		}
	case <-s.ctx.Done():
	}
}

func (s *Shuffler[T]) Progress() float64 {
	return s.upstream.Progress()
}

func (s *Shuffler[T]) Close() error {
	return s.closer.Do(func() error {
		s.closedExternally.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		if s.senderDone != nil {
			<-s.senderDone
		}
		var lnErr error
		if s.ln != nil {
			lnErr = s.ln.Close()
		}
		if s.srv != nil {
			s.srv.wg.Wait()
		}
		if s.clientMgr != nil {
			s.clientMgr.closeAll()
		}
		upErr := s.upstream.Close()
		if lnErr != nil {
			return pipe.NewError(pipe.KindIO, "shuffle.Close", lnErr)
		}
		return upErr
	})
}

var _ pipe.Push[int] = (*Shuffler[int])(nil)
