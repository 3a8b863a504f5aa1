package proxy

import (
	"io"
)

type closeWriter interface {
	CloseWrite() error
}

// closeWrite half-closes w if it supports it, signaling EOF to the peer
// while the other direction keeps flowing.
func closeWrite(w io.Writer) {
	if cw, ok := w.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
}

// pump copies src to dst until src reports EOF, recording the byte count
// under direction.
func (s *Server) pump(dst io.Writer, src io.Reader, direction string) (int64, error) {
	buf := s.pool.Get()
	defer s.pool.Put(buf)

	n, err := io.CopyBuffer(dst, src, *buf)
	s.metrics.AddBytes(direction, n)
	return n, err
}
