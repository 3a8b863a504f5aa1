package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/die-net/linerelay/internal/dialer"
	"github.com/die-net/linerelay/internal/metrics"
	"github.com/die-net/linerelay/internal/target"
)

var (
	// ErrUpstreamConnect wraps failures to open the upstream connection.
	ErrUpstreamConnect = errors.New("upstream connect failed")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("proxy: server closed")
)

const clientReadBufferSize = 16 * 1024

// Server accepts client connections and relays each one independently.
type Server struct {
	ctx     context.Context
	dialer  dialer.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
	verbose bool
	pool    *bufferPool
	limiter *rate.Limiter

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
}

// NewServer constructs a Server. ctx is used for upstream dials.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{
		ctx:       ctx,
		dialer:    cfg.Dialer,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		verbose:   cfg.Verbose,
		pool:      newBufferPool(copyBufferSize),
		listeners: make(map[net.Listener]struct{}),
	}
	if s.dialer == nil {
		s.dialer = dialer.NewDirectDialer(dialer.Config{KeepAlive: cfg.KeepAlive})
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(cfg.AcceptRate, max(cfg.AcceptBurst, 1))
	}
	return s
}

// Serve accepts connections on ln and handles each in its own goroutine.
// It returns when Accept fails; after Close that error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	if !s.track(ln) {
		return ErrServerClosed
	}
	defer s.untrack(ln)

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return fmt.Errorf("accept: %w", err)
			}
		}

		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.serveConn(c)
	}
}

// Close stops all Serve loops. Connections already being relayed run to
// completion.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var errs []error
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	clear(s.listeners)
	s.mu.Unlock()
	return errors.Join(errs...)
}

func (s *Server) track(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrack(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveConn(c net.Conn) {
	defer c.Close()

	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	remote := c.RemoteAddr().String()
	s.logger.Debug("new connection", "remote", remote)

	kind, err := s.dispatch(c)
	if err != nil {
		s.metrics.SessionErrors.WithLabelValues(kind).Inc()
		level := slog.LevelDebug
		if s.verbose {
			level = slog.LevelWarn
		}
		s.logger.Log(s.ctx, level, "connection error", "remote", remote, "kind", kind, "err", err)
		return
	}
	s.logger.Debug("connection completed", "remote", remote, "kind", kind)
}

// dispatch reads the first request line, resolves it and hands the
// connection to the matching relay. kind is a metrics label.
func (s *Server) dispatch(c net.Conn) (kind string, err error) {
	br := bufio.NewReaderSize(c, clientReadBufferSize)

	line, err := readRequestLine(br)
	if errors.Is(err, io.EOF) {
		// Closed before sending anything.
		return "", nil
	}
	if err != nil {
		s.metrics.ConnectionsTotal.WithLabelValues(metrics.KindInvalid).Inc()
		return metrics.KindInvalid, fmt.Errorf("read request line: %w", err)
	}
	s.logger.Debug("first line", "line", strings.TrimRight(line, "\r\n"))

	t, err := target.Parse(line)
	if err != nil {
		s.metrics.ConnectionsTotal.WithLabelValues(metrics.KindInvalid).Inc()
		return metrics.KindInvalid, err
	}
	s.logger.Info("request", "target", t.String(), "remote", c.RemoteAddr().String())

	if t.IsConnect() {
		s.metrics.ConnectionsTotal.WithLabelValues(metrics.KindConnect).Inc()
		return metrics.KindConnect, s.relayTunnel(t, c, br)
	}
	s.metrics.ConnectionsTotal.WithLabelValues(metrics.KindHTTP).Inc()
	return metrics.KindHTTP, s.relayHTTP(t, c, br)
}

func (s *Server) dialUpstream(t target.Target) (net.Conn, error) {
	addr := t.Addr()
	s.logger.Debug("connecting to remote", "addr", addr)

	up, err := s.dialer.DialContext(s.ctx, "tcp", addr)
	s.metrics.DialResult(err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamConnect, err)
	}
	s.logger.Debug("remote connected", "addr", addr)
	return up, nil
}
