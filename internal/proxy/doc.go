// Package proxy implements the forward proxy's protocol engine.
//
// A Server reads the first request line off each accepted connection and
// routes it: CONNECT requests become an opaque byte tunnel, anything else
// is relayed as HTTP/1.1 with Content-Length framing, re-reading the request
// line after every exchange so pipelined and keep-alive clients work.
package proxy
