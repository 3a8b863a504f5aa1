package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/linerelay/internal/metrics"
	"github.com/die-net/linerelay/internal/target"
)

// httpSession is the state carried across the requests of one client
// connection. The client's read and write sides are locked separately so
// the request and response goroutines of one exchange never wait on each
// other.
type httpSession struct {
	s       *Server
	current target.Target

	readMu  sync.Mutex
	clientR *bufio.Reader

	writeMu sync.Mutex
	clientW net.Conn
}

// nextRequest is what the request side of an exchange leaves behind:
// either the next request line or the signal that the client is done.
type nextRequest struct {
	line         string
	clientClosed bool
}

// relayHTTP forwards requests from client until it stops sending. Every
// request gets a fresh upstream connection, including pipelined requests
// to the same origin.
//
// Bodies are framed by Content-Length only. A chunked request body is
// forwarded as if it were the start of the next request and breaks the
// session.
func (s *Server) relayHTTP(t target.Target, client net.Conn, br *bufio.Reader) error {
	sess := &httpSession{s: s, current: t, clientR: br, clientW: client}

	for {
		next, err := sess.exchange()
		if err != nil {
			return err
		}
		if next.clientClosed {
			s.logger.Debug("no more requests")
			return nil
		}

		s.logger.Debug("next request", "line", strings.TrimRight(next.line, "\r\n"))
		t, err := target.Parse(next.line)
		if err != nil {
			return err
		}
		s.logger.Info("request", "target", t.String(), "remote", client.RemoteAddr().String())
		sess.current = t
	}
}

// exchange relays one request and its response over a new upstream
// connection.
func (h *httpSession) exchange() (nextRequest, error) {
	upstream, err := h.s.dialUpstream(h.current)
	if err != nil {
		return nextRequest{}, err
	}
	defer upstream.Close()

	if _, err := io.WriteString(upstream, h.current.RequestLine()); err != nil {
		return nextRequest{}, fmt.Errorf("write request line: %w", err)
	}
	h.s.metrics.RequestsRelayed.Inc()

	var (
		g    errgroup.Group
		next nextRequest
	)
	g.Go(func() error {
		var err error
		next, err = h.forwardRequest(upstream)
		return err
	})
	g.Go(func() error {
		return h.copyResponse(upstream)
	})

	if err := g.Wait(); err != nil {
		return nextRequest{}, err
	}
	return next, nil
}

// forwardRequest copies the header block and Content-Length body from the
// client to upstream, then reads the client's next request line. Upstream
// is half-closed on return so the response copy sees EOF once the origin
// finishes.
func (h *httpSession) forwardRequest(upstream net.Conn) (nextRequest, error) {
	h.readMu.Lock()
	defer h.readMu.Unlock()
	// Also on success: the request is complete and the response is read
	// until the origin closes, so the FIN only marks the end of input.
	defer closeWrite(upstream)

	var contentLength int64
	for {
		line, err := readLine(h.clientR)
		if isClientEOF(err) {
			h.s.logger.Debug("reached EOF from local inside request headers", "partial", len(line))
			if line != "" {
				if _, err := io.WriteString(upstream, line); err != nil {
					return nextRequest{}, fmt.Errorf("forward request header: %w", err)
				}
			}
			return nextRequest{clientClosed: true}, nil
		}
		if err != nil {
			return nextRequest{}, fmt.Errorf("read request header: %w", err)
		}
		h.s.logger.Debug("header", "line", strings.TrimRight(line, "\r\n"))

		if n, ok := parseContentLength(line); ok {
			contentLength = n
		}
		if _, err := io.WriteString(upstream, line); err != nil {
			return nextRequest{}, fmt.Errorf("forward request header: %w", err)
		}
		if isBlankLine(line) {
			break
		}
	}

	h.s.logger.Debug("request body length", "bytes", contentLength)
	if contentLength > 0 {
		n, err := io.CopyN(upstream, h.clientR, contentLength)
		h.s.metrics.AddBytes(metrics.DirectionUpstream, n)
		if isClientEOF(err) {
			h.s.logger.Debug("reached EOF from local inside request body", "bytes", n)
			return nextRequest{clientClosed: true}, nil
		}
		if err != nil {
			return nextRequest{}, fmt.Errorf("forward request body: %w", err)
		}
	}

	line, err := readRequestLine(h.clientR)
	if isClientEOF(err) {
		h.s.logger.Debug("reached EOF from local")
		return nextRequest{clientClosed: true}, nil
	}
	if err != nil {
		return nextRequest{}, fmt.Errorf("read next request line: %w", err)
	}
	return nextRequest{line: line}, nil
}

// copyResponse streams everything upstream sends to the client.
func (h *httpSession) copyResponse(upstream net.Conn) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	n, err := h.s.pump(h.clientW, upstream, metrics.DirectionDownstream)
	h.s.logger.Debug("done reading from remote", "bytes", n)
	if err != nil {
		return fmt.Errorf("copy response: %w", err)
	}
	return nil
}
