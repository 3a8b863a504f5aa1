package dialer

import (
	"bufio"
	"net"
)

// bufferedConn returns bytes already read into r before reading from the
// underlying conn. Handshakes that parse replies with a bufio.Reader may
// have consumed the first bytes of the tunneled stream.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func wrapBuffered(c net.Conn, r *bufio.Reader) net.Conn {
	if r.Buffered() == 0 {
		return c
	}
	return &bufferedConn{Conn: c, r: r}
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// CloseWrite half-closes the underlying conn when it supports it.
func (c *bufferedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
