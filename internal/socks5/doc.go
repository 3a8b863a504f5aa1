// Package socks5 performs the client side of a SOCKS5 CONNECT handshake on
// top of the wire types in github.com/txthinking/socks5.
//
// It is used by the upstream dialer when the relay is chained behind a
// SOCKS5 proxy.
package socks5
