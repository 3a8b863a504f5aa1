package proxy

import (
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"github.com/die-net/linerelay/internal/dialer"
	"github.com/die-net/linerelay/internal/metrics"
)

// Config configures a Server and its listeners.
type Config struct {
	// Dialer opens upstream connections. Nil means a direct dialer.
	Dialer dialer.Dialer

	KeepAlive net.KeepAliveConfig
	ReusePort bool

	// AcceptRate caps accepted connections per second. Zero is unlimited.
	AcceptRate  rate.Limit
	AcceptBurst int

	// Logger receives relay events. Nil discards them.
	Logger *slog.Logger
	// Metrics is updated per connection. Nil allocates a private registry.
	Metrics *metrics.Metrics
	// Verbose logs per-connection errors at warn level instead of debug.
	Verbose bool
}
