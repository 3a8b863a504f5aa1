// Package ssh holds the SSH transport pieces used when the relay is chained
// behind an SSH server: the client handshake, private key and agent signer
// loading, and known_hosts verification with trust on first use.
//
// Channel multiplexing over the shared transport lives in the dialer
// package.
package ssh
