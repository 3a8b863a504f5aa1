// Package dialer opens upstream connections for the relay.
//
// A Dialer reaches the destination named by a request either directly or
// through a chained upstream proxy (HTTP CONNECT, SOCKS5, or SSH
// "direct-tcpip" channels). Every call returns a fresh connection; nothing
// is pooled toward the destination.
package dialer
