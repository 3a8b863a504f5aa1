package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP listens on addr. Accepted TCP connections get cfg.KeepAlive
// applied; with cfg.ReusePort the socket is bound with SO_REUSEADDR and
// SO_REUSEPORT so several processes can share the port.
func ListenTCP(ctx context.Context, network, addr string, cfg Config) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: cfg.KeepAlive}
	if !cfg.KeepAlive.Enable {
		// Otherwise the listener turns on keepalive with system defaults.
		lc.KeepAlive = -1
	}
	if cfg.ReusePort {
		if !ReusePortSupported {
			return nil, fmt.Errorf("listen %s %s: reuse-port is not supported on this platform", network, addr)
		}
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}
	return ln, nil
}
