//go:build !js

package internal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"nhooyr.io/websocket"
)

// dialPlatform opens the native backend: an HTTP upgrade through
// nhooyr.io/websocket. The transport already behaves as an asynchronous
// message channel, so the adapter is a pass-through plus error mapping.
func dialPlatform(ctx context.Context, u *url.URL, opts *DialOptions) (*Conn, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts)
	}

	wsOpts := &websocket.DialOptions{
		HTTPClient:   httpClient,
		HTTPHeader:   opts.Header,
		Subprotocols: opts.Subprotocols,
	}
	c, resp, err := websocket.Dial(ctx, u.String(), wsOpts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake status %d: %v", ErrConnectionFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	sm := newStateMachine()
	sm.open()
	return newConn(&nativeConn{c: c}, sm, c.Subprotocol(), opts.Logger), nil
}

// newHTTPClient builds the dial transport: proxy from the environment,
// TLS 1.2 floor, and the fwmark socket option applied on every outgoing
// connection. No Timeout is set; the dial is bounded by ctx.
func newHTTPClient(opts *DialOptions) *http.Client {
	d := &net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = setSocketMark(fd, opts.Fwmark)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}

	tlsCfg := opts.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			DialContext:     d.DialContext,
			TLSClientConfig: tlsCfg,
		},
	}
}

// nativeConn adapts nhooyr's connection to the backend contract. The
// transport answers pings during reads on its own; ping frames never
// surface here.
type nativeConn struct {
	c *websocket.Conn
}

func (n *nativeConn) recv(ctx context.Context) (Message, error) {
	mt, data, err := n.c.Read(ctx)
	if err != nil {
		return Message{}, mapRecvError(ctx, err)
	}
	switch mt {
	case websocket.MessageText:
		return Message{Type: MessageText, Data: data}, nil
	default:
		return Message{Type: MessageBinary, Data: data}, nil
	}
}

func (n *nativeConn) send(ctx context.Context, m Message) error {
	mt := websocket.MessageBinary
	if m.IsText() {
		mt = websocket.MessageText
	}
	if err := n.c.Write(ctx, mt, m.Data); err != nil {
		return mapSendError(ctx, err)
	}
	return nil
}

func (n *nativeConn) close(code StatusCode, reason string) error {
	err := n.c.Close(websocket.StatusCode(code), reason)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: close handshake: %v", ErrIO, err)
	}
	return nil
}

// mapRecvError folds a read failure into the unified vocabulary. A close
// frame from the peer becomes CloseError; any frameless end of the
// transport is an abnormal closure; what remains is a protocol violation.
func mapRecvError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("wsbridge: receive: %w", ctx.Err())
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		code := StatusCode(ce.Code)
		if code == StatusAbnormalClosure || code == StatusNoStatusRcvd {
			return fmt.Errorf("%w: %v", ErrAbnormalClosure, err)
		}
		return CloseError{Code: code, Reason: ce.Reason}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrAbnormalClosure, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", ErrAbnormalClosure, err)
	}
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}

// mapSendError folds a write failure: the peer's close frame surfacing
// mid-send becomes CloseError, everything else is transport I/O.
func mapSendError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("wsbridge: send: %w", ctx.Err())
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return CloseError{Code: StatusCode(ce.Code), Reason: ce.Reason}
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
