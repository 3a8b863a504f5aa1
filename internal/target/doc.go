// Package target parses the leading line of a proxied request into the
// destination the relay should connect to.
package target
