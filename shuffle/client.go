package shuffle

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const defaultWatermark = 1 << 20 // 1 MiB of in-flight payload per connection

// clientKey identifies one outbound connection: a producing thread paired
// with the destination peer it targets. Lazy-open means the connection
// for a given key is dialed on its first send.
type clientKey struct {
	thread int
	peer   int
}

// peerConn is one open data connection to a peer, tracking the byte count
// the channel-done marker will report.
type peerConn struct {
	wc        *wireConn
	bytesSent int64
	sem       *semaphore.Weighted
}

// clientManager owns every outbound connection a worker opens to its
// peers, keyed by (thread, peer) so each producing thread gets its own
// connection per destination and never blocks behind another thread's
// in-flight write.
type clientManager struct {
	mu            sync.Mutex
	peers         []string
	compress      bool
	retryInterval time.Duration
	retryWindow   time.Duration
	watermark     int64
	conns         map[clientKey]*peerConn
}

func newClientManager(peers []string, compress bool, retryInterval, retryWindow time.Duration, watermark int64) *clientManager {
	if watermark <= 0 {
		watermark = defaultWatermark
	}
	return &clientManager{
		peers:         peers,
		compress:      compress,
		retryInterval: retryInterval,
		retryWindow:   retryWindow,
		watermark:     watermark,
		conns:         map[clientKey]*peerConn{},
	}
}

func (m *clientManager) getOrDial(key clientKey) (*peerConn, error) {
	m.mu.Lock()
	if pc, ok := m.conns[key]; ok {
		m.mu.Unlock()
		return pc, nil
	}
	m.mu.Unlock()

	conn, err := dialWithRetry(m.peers[key.peer], m.retryInterval, m.retryWindow)
	if err != nil {
		return nil, err
	}
	pc := &peerConn{wc: newWireConn(conn, m.compress), sem: semaphore.NewWeighted(m.watermark)}

	m.mu.Lock()
	m.conns[key] = pc
	m.mu.Unlock()
	return pc, nil
}

// send writes payload to the (thread, peer) connection, blocking only
// while the connection's write watermark is exceeded.
func (m *clientManager) send(ctx context.Context, thread, peer int, payload []byte) error {
	pc, err := m.getOrDial(clientKey{thread, peer})
	if err != nil {
		return err
	}
	weight := int64(len(payload))
	if weight == 0 {
		weight = 1
	}
	if err := pc.sem.Acquire(ctx, weight); err != nil {
		return err
	}
	defer pc.sem.Release(weight)

	if err := writeDataFrame(pc.wc.w, payload); err != nil {
		return err
	}
	pc.bytesSent += int64(len(payload))
	return pc.wc.flush()
}

// doneAll runs the per-peer shutdown sequence for thread: every open data
// connection gets a channel-done marker and is closed only once the
// server acks by closing its end; every peer, whether or not a
// connection was ever opened to it, then gets a fresh connection carrying
// the worker-done marker.
func (m *clientManager) doneAll(thread int) error {
	for peer := range m.peers {
		key := clientKey{thread, peer}
		m.mu.Lock()
		pc, ok := m.conns[key]
		m.mu.Unlock()
		if ok {
			if err := writeChannelDone(pc.wc.w, pc.bytesSent); err != nil {
				return err
			}
			if err := pc.wc.flush(); err != nil {
				return err
			}
			// Await the server's close-as-ack.
			buf := make([]byte, 1)
			for {
				if _, err := pc.wc.r.Read(buf); err != nil {
					break
				}
			}
			_ = pc.wc.Close()
		}

		conn, err := dialWithRetry(m.peers[peer], m.retryInterval, m.retryWindow)
		if err != nil {
			return err
		}
		fresh := newWireConn(conn, m.compress)
		if err := writeWorkerDone(fresh.w); err != nil {
			_ = fresh.Close()
			return err
		}
		if err := fresh.flush(); err != nil {
			_ = fresh.Close()
			return err
		}
		_ = fresh.Close()
	}
	return nil
}

// closeAll closes every still-open connection, used when the shuffler
// tears down before doneAll has run (error or external Close).
func (m *clientManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pc := range m.conns {
		_ = pc.wc.Close()
	}
}

var _ io.Closer = (*wireConn)(nil)
