package internal

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// DialOptions controls Dial. A nil pointer and the zero value are valid.
type DialOptions struct {
	// Subprotocols lists sub-protocol names offered during the handshake,
	// in preference order. Both backends honor it.
	Subprotocols []string

	// Header carries extra handshake headers. The native backend sends
	// them; the browser offers no way to set handshake headers, so the
	// browser backend ignores them without error.
	Header http.Header

	// HTTPClient overrides the native backend's HTTP client. When nil, a
	// client with proxy from the environment, a TLS 1.2 floor and the
	// Fwmark socket option is built. The client must not have a Timeout;
	// bound the dial with ctx instead. Ignored by the browser backend.
	HTTPClient *http.Client

	// TLSConfig overrides the TLS configuration of the built-in native
	// client. Ignored when HTTPClient is set, and by the browser backend.
	TLSConfig *tls.Config

	// Fwmark sets the Linux SO_MARK on native dials. 0 disables.
	Fwmark uint32

	// RecvQueueSize bounds the browser backend's inbound event queue.
	// Events arriving past the bound terminate the connection abnormally.
	// Defaults to 128. The native backend reads on demand and needs no
	// queue.
	RecvQueueSize int

	// Logger receives connection lifecycle logs. Defaults to a nop.
	Logger *zap.Logger
}

func (o *DialOptions) withDefaults() *DialOptions {
	var out DialOptions
	if o != nil {
		out = *o
	}
	if out.RecvQueueSize <= 0 {
		out.RecvQueueSize = defaultRecvQueueSize
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}

// Dial opens a WebSocket connection to rawURL and returns the handle once
// the connection is open. It never returns a handle in any other state,
// so a returned Conn is immediately usable for Send and Recv. There is no
// intrinsic dial timeout; callers bound establishment with ctx, and
// canceling it tears the attempt down without leaking the socket or any
// callback registration.
func Dial(ctx context.Context, rawURL string, opts *DialOptions) (*Conn, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	start := time.Now()
	conn, err := dialPlatform(ctx, u, opts)
	if err != nil {
		observeDialFailure(u.Host, err)
		return nil, err
	}
	observeDial(u.Host, time.Since(start))
	observeConnOpen("client")
	opts.Logger.Debug("websocket open",
		zap.String("url", u.String()),
		zap.String("subprotocol", conn.Subprotocol()))
	return conn, nil
}

// parseURL validates the dial target and normalizes http(s) schemes to
// their ws(s) equivalents so both backends accept the same inputs.
func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

// Probe verifies that a WebSocket handshake against rawURL succeeds and
// reports how long it took. The connection is closed immediately.
func Probe(ctx context.Context, rawURL string, opts *DialOptions) (time.Duration, error) {
	start := time.Now()
	c, err := Dial(ctx, rawURL, opts)
	if err != nil {
		return 0, err
	}
	_ = c.Close(StatusNormalClosure, "probe")
	return time.Since(start), nil
}
