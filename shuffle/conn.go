package shuffle

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/klauspost/compress/s2"

	"github.com/gosuda/pipecraft/internal/netutil"
)

// wireConn pairs a TCP connection with an optional S2 frame reader/writer.
// With compression on, writes are buffered in the S2 writer until flush
// pushes them through; without it, every write goes straight to the
// connection and flush does nothing.
type wireConn struct {
	conn net.Conn
	w    io.Writer
	r    io.Reader
	s2w  *s2.Writer
}

func newWireConn(conn net.Conn, compress bool) *wireConn {
	wc := &wireConn{conn: conn}
	if compress {
		s2w := s2.NewWriter(conn)
		wc.s2w = s2w
		wc.w = s2w
		wc.r = s2.NewReader(conn)
	} else {
		wc.w = conn
		wc.r = conn
	}
	return wc
}

func (wc *wireConn) flush() error {
	if wc.s2w != nil {
		return wc.s2w.Flush()
	}
	return nil
}

func (wc *wireConn) Close() error {
	if wc.s2w != nil {
		_ = wc.s2w.Close()
	}
	return wc.conn.Close()
}

// isRetryableConnectErr reports whether err is a transient connect
// failure worth retrying (refused, timed out, or reset); every other
// error, such as a bad address or a DNS failure, is treated as permanent.
func isRetryableConnectErr(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.ECONNRESET)
}

const dialTimeout = 5 * time.Second

// dialWithRetry dials addr, retrying connect-refused-like errors every
// interval until window elapses since the first attempt. Other errors
// propagate immediately.
func dialWithRetry(addr string, interval, window time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(window)
	for {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			_ = netutil.SetNoDelay(conn)
			return conn, nil
		}
		if !isRetryableConnectErr(err) || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(interval)
	}
}
