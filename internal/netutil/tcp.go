// Package netutil carries small net.Conn/net.Listener helpers shared by
// pipecraft's TCP-based components.
package netutil

import "net"

// SetNoDelay enables TCP_NODELAY on conn, disabling Nagle's algorithm so
// small frames aren't held back waiting to coalesce. A no-op (nil error)
// for non-TCP connections.
func SetNoDelay(conn net.Conn) error {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		return tcpConn.SetNoDelay(true)
	}
	return nil
}

// NoDelayListener wraps a net.Listener so every accepted connection gets
// TCP_NODELAY enabled before being handed to the caller.
type NoDelayListener struct {
	net.Listener
}

// NewNoDelayListener wraps l.
func NewNoDelayListener(l net.Listener) *NoDelayListener {
	return &NoDelayListener{Listener: l}
}

func (l *NoDelayListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	_ = SetNoDelay(conn)
	return conn, nil
}
