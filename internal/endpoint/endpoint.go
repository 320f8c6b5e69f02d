// Package endpoint parses the connection URIs accepted by the transports.
//
// Accepted forms:
//
//	unix:/run/afb/hello      unix socket path
//	unix:@hello              abstract unix socket (Linux)
//	localhost:1234/api       websocket over TCP, ws:// implied
//	ws://host:port/path      websocket over TCP
//	wss://host:port/path     websocket over TLS
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrInvalidURI is returned for URIs matching none of the accepted forms.
var ErrInvalidURI = errors.New("invalid endpoint uri")

// Endpoint is a parsed connection URI.
type Endpoint struct {
	// URL is the websocket URL used for the handshake.
	URL string
	// Network is "unix" or "tcp".
	Network string
	// Address is the socket path or host:port.
	Address string
	// Path is the HTTP path served by a listener.
	Path string
}

// Parse parses uri.
func Parse(uri string) (Endpoint, error) {
	if uri == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidURI)
	}

	if rest, ok := strings.CutPrefix(uri, "unix:"); ok {
		if rest == "" || rest == "@" {
			return Endpoint{}, fmt.Errorf("%w: %q has no socket path", ErrInvalidURI, uri)
		}
		return Endpoint{
			URL:     "ws://localhost/",
			Network: "unix",
			Address: rest,
			Path:    "/",
		}, nil
	}

	raw := uri
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: %q has no host", ErrInvalidURI, uri)
	}

	path := u.Path
	if path == "" {
		path = "/"
		u.Path = path
	}
	return Endpoint{
		URL:     u.String(),
		Network: "tcp",
		Address: u.Host,
		Path:    path,
	}, nil
}

// Dialer returns a copy of base (websocket.DefaultDialer when nil) that
// reaches the endpoint's socket.
func (e Endpoint) Dialer(base *websocket.Dialer) *websocket.Dialer {
	if base == nil {
		base = websocket.DefaultDialer
	}
	d := *base
	if e.Network == "unix" {
		addr := e.Address
		d.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var nd net.Dialer
			return nd.DialContext(ctx, "unix", addr)
		}
	}
	return &d
}

// Listen opens a listener on the endpoint's socket.
func (e Endpoint) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, e.Network, e.Address)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", e.Network, e.Address, err)
	}
	return ln, nil
}
