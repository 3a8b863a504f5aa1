package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/linerelay/internal/metrics"
	"github.com/die-net/linerelay/internal/target"
)

const connectEstablished = "HTTP/1.1 200 Connection established\r\n\r\n"

// relayTunnel serves a CONNECT request: it drains the request headers,
// dials the target and then copies bytes both ways until each side has
// sent EOF.
//
// Each goroutine owns one half of each connection: the downstream one
// writes to client and reads from upstream, the upstream one reads from
// br (the client's read side) and writes to upstream.
func (s *Server) relayTunnel(t target.Target, client net.Conn, br *bufio.Reader) error {
	for {
		line, err := readLine(br)
		if isClientEOF(err) {
			s.logger.Debug("client closed before end of connect headers")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read connect header: %w", err)
		}
		if isBlankLine(line) {
			break
		}
		s.logger.Debug("header", "line", strings.TrimRight(line, "\r\n"))
	}

	upstream, err := s.dialUpstream(t)
	if err != nil {
		return err
	}
	defer upstream.Close()

	var g errgroup.Group
	g.Go(func() error {
		defer closeWrite(client)

		if _, err := io.WriteString(client, connectEstablished); err != nil {
			return fmt.Errorf("write connect response: %w", err)
		}
		n, err := s.pump(client, upstream, metrics.DirectionDownstream)
		s.logger.Debug("done reading from remote", "bytes", n)
		if err != nil {
			return fmt.Errorf("copy upstream to client: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer closeWrite(upstream)

		n, err := s.pump(upstream, br, metrics.DirectionUpstream)
		s.logger.Debug("done reading from local", "bytes", n)
		if err != nil {
			return fmt.Errorf("copy client to upstream: %w", err)
		}
		return nil
	})

	s.logger.Debug("tunnel established", "target", t.Addr())
	return g.Wait()
}
