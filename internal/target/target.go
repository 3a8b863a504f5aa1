package target

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// MethodConnect is the tunneling method.
const MethodConnect = "CONNECT"

var (
	ErrMalformedRequestLine   = errors.New("malformed request line")
	ErrMalformedConnectTarget = errors.New("malformed connect target")
	ErrMalformedRequestURL    = errors.New("malformed request url")
)

// Target describes the destination of a single request.
type Target struct {
	Method    string
	Host      string
	Port      uint16
	PathQuery string // Empty for CONNECT.
}

// Parse resolves a request line such as "GET http://example.com/ HTTP/1.1"
// or "CONNECT example.com:443 HTTP/1.1" into a Target.
//
// Only the method and the request target are inspected; the protocol
// version and anything after it are ignored.
func Parse(line string) (Target, error) {
	line = strings.TrimRight(line, "\r\n")

	method, rest, ok := strings.Cut(line, " ")
	if !ok || method == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	addr, _, _ := strings.Cut(rest, " ")
	if addr == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}

	if method == MethodConnect {
		return parseConnect(addr)
	}
	return parseAbsoluteURL(method, addr)
}

func parseConnect(addr string) (Target, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: %w", ErrMalformedConnectTarget, addr, err)
	}
	if host == "" {
		return Target{}, fmt.Errorf("%w: %q: missing host", ErrMalformedConnectTarget, addr)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: invalid port", ErrMalformedConnectTarget, addr)
	}

	return Target{Method: MethodConnect, Host: host, Port: uint16(port)}, nil
}

func parseAbsoluteURL(method, addr string) (Target, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrMalformedRequestURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("%w: %q: missing host", ErrMalformedRequestURL, addr)
	}

	var port uint64
	if p := u.Port(); p != "" {
		port, err = strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %q: invalid port", ErrMalformedRequestURL, addr)
		}
	} else {
		port = uint64(DefaultPort(u.Scheme))
		if port == 0 {
			return Target{}, fmt.Errorf("%w: %q: no default port for scheme %q", ErrMalformedRequestURL, addr, u.Scheme)
		}
	}

	pathQuery := u.EscapedPath()
	if pathQuery == "" {
		pathQuery = "/"
	}
	if u.RawQuery != "" || u.ForceQuery {
		pathQuery += "?" + u.RawQuery
	}

	return Target{
		Method:    method,
		Host:      host,
		Port:      uint16(port),
		PathQuery: pathQuery,
	}, nil
}

// DefaultPort returns the well-known port for scheme, or 0 if unknown.
func DefaultPort(scheme string) uint16 {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	case "ftp":
		return 21
	default:
		return 0
	}
}

// IsConnect reports whether t is a CONNECT tunnel request.
func (t Target) IsConnect() bool {
	return t.Method == MethodConnect
}

// Addr returns the host:port to dial.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// RequestLine returns the origin-form request line sent upstream.
func (t Target) RequestLine() string {
	return t.Method + " " + t.PathQuery + " HTTP/1.1\r\n"
}

func (t Target) String() string {
	return t.Method + " " + t.Addr() + t.PathQuery
}
