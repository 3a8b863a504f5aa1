package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect.
	DialTimeout time.Duration
	// NegotiationTimeout bounds upstream proxy handshakes (TLS, CONNECT,
	// SOCKS5, SSH).
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	SSHKeyPath        string
	SSHKnownHostsPath string
}
