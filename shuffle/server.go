package shuffle

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gosuda/pipecraft/codec"
	"github.com/gosuda/pipecraft/pipe"
)

// server accepts one connection per remote producer and fans decoded
// items into listener. Each connection is either a data stream, ended by
// a channel-done marker, or a bare worker-done marker on its own
// connection; either way the handler closes the connection once it sees
// the terminal marker, which doubles as the client's ack to wait on.
type server struct {
	ln       net.Listener
	compress bool
	latch    *countdownLatch
	decode   func([]byte) (any, error)
	onNext   func(any)
	onError  func(error)

	wg sync.WaitGroup
}

func newServer[T any](ln net.Listener, factory codec.Factory[T], compress bool, latch *countdownLatch, listener *pipe.TerminalGuard[T]) *server {
	dec := factory.Decoder()
	return &server{
		ln:       ln,
		compress: compress,
		latch:    latch,
		decode: func(payload []byte) (any, error) {
			return dec.Decode(bytes.NewReader(payload))
		},
		onNext:  func(v any) { listener.OnNext(v.(T)) },
		onError: func(err error) { listener.OnError(pipe.NewError(pipe.KindIO, "shuffle.server", err)) },
	}
}

// serve accepts connections until the listener is closed, which is how
// Shuffler.Close stops it.
func (s *server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	wc := newWireConn(conn, s.compress)
	var bytesReceived int64

	for {
		kind, payload, reportedBytes, err := readFrame(wc.r)
		if err != nil {
			if err == io.EOF {
				return
			}
			s.onError(err)
			return
		}
		switch kind {
		case frameData:
			v, err := s.decode(payload)
			if err != nil {
				s.onError(err)
				return
			}
			bytesReceived += int64(len(payload))
			s.onNext(v)
		case frameChannelDone:
			if reportedBytes != bytesReceived {
				s.onError(fmt.Errorf("shuffle: channel-done byte mismatch: reported %d, received %d", reportedBytes, bytesReceived))
				return
			}
			return
		case frameWorkerDone:
			s.latch.decrement()
			return
		}
	}
}
