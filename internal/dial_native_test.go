//go:build !js

package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEchoServer(t *testing.T, es *EchoServer) string {
	t.Helper()
	if es == nil {
		es = &EchoServer{}
	}
	srv := httptest.NewServer(es)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newWSHandler serves one scripted WebSocket conversation.
func newWSHandler(t *testing.T, fn func(c *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		fn(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialEchoRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := newEchoServer(t, nil)

	conn, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if conn.State() != StateOpen {
		t.Fatalf("state after dial %v", conn.State())
	}

	if err := conn.Send(ctx, TextMessage("ping")); err != nil {
		t.Fatalf("send text: %v", err)
	}
	msg, err := conn.Recv(ctx)
	if err != nil || !msg.IsText() || msg.Text() != "ping" {
		t.Fatalf("recv text: %#v err=%v", msg, err)
	}

	if err := conn.Send(ctx, BinaryMessage([]byte{0, 1, 2})); err != nil {
		t.Fatalf("send binary: %v", err)
	}
	msg, err = conn.Recv(ctx)
	if err != nil || !msg.IsBinary() || len(msg.Data) != 3 {
		t.Fatalf("recv binary: %#v err=%v", msg, err)
	}

	if err := conn.Close(StatusNormalClosure, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	msg, err = conn.Recv(ctx)
	if err != nil || !msg.IsClose() {
		t.Fatalf("recv close: %#v err=%v", msg, err)
	}
	if msg.Close == nil || msg.Close.Code != StatusNormalClosure || msg.Close.Reason != "done" {
		t.Fatalf("close frame %#v", msg.Close)
	}
	if conn.State() != StateClosed {
		t.Fatalf("state after close %v", conn.State())
	}

	if _, err := conn.Recv(ctx); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("recv on closed: %v", err)
	}
	if err := conn.Send(ctx, TextMessage("late")); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("send on closed: %v", err)
	}
	if err := conn.Close(StatusNormalClosure, "again"); err != nil {
		t.Fatalf("repeat close: %v", err)
	}
}

func TestDialOrderPreserved(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := newWSHandler(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("1"))
		c.WriteMessage(websocket.BinaryMessage, []byte{2})
		c.WriteMessage(websocket.TextMessage, []byte("3"))
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(int(StatusNormalClosure), "done"),
			time.Now().Add(time.Second))
		c.ReadMessage() // wait for the close response
	})

	conn, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	msg, err := conn.Recv(ctx)
	if err != nil || !msg.IsText() || msg.Text() != "1" {
		t.Fatalf("recv 1: %#v err=%v", msg, err)
	}
	msg, err = conn.Recv(ctx)
	if err != nil || !msg.IsBinary() || len(msg.Data) != 1 || msg.Data[0] != 2 {
		t.Fatalf("recv 2: %#v err=%v", msg, err)
	}
	msg, err = conn.Recv(ctx)
	if err != nil || !msg.IsText() || msg.Text() != "3" {
		t.Fatalf("recv 3: %#v err=%v", msg, err)
	}
	msg, err = conn.Recv(ctx)
	if err != nil || !msg.IsClose() || msg.Close == nil || msg.Close.Code != StatusNormalClosure {
		t.Fatalf("recv close: %#v err=%v", msg, err)
	}
}

func TestDialServerInitiatedClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := newWSHandler(t, func(c *websocket.Conn) {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4001, "going away"),
			time.Now().Add(time.Second))
		c.ReadMessage()
	})

	conn, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	msg, err := conn.Recv(ctx)
	if err != nil || !msg.IsClose() {
		t.Fatalf("recv: %#v err=%v", msg, err)
	}
	if msg.Close == nil || msg.Close.Code != 4001 || msg.Close.Reason != "going away" {
		t.Fatalf("close frame %#v", msg.Close)
	}
	if conn.State() != StateClosed {
		t.Fatalf("state %v", conn.State())
	}
	if _, err := conn.Recv(ctx); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("recv after close: %v", err)
	}
}

func TestDialAbnormalDrop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := newWSHandler(t, func(c *websocket.Conn) {
		// Drop the TCP connection without a close frame.
		c.UnderlyingConn().Close()
	})

	conn, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	_, err = conn.Recv(ctx)
	if !errors.Is(err, ErrAbnormalClosure) {
		t.Fatalf("recv: %v", err)
	}
	if got := CloseStatus(err); got != StatusAbnormalClosure {
		t.Fatalf("CloseStatus=%d", got)
	}
	if conn.State() != StateClosed {
		t.Fatalf("state %v", conn.State())
	}
	if _, err := conn.Recv(ctx); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("recv after drop: %v", err)
	}
}

func TestDialConnectionRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(ctx, "ws://"+addr, nil); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("dial refused port: %v", err)
	}
}

func TestDialInvalidURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, raw := range []string{
		"://bad",
		"ftp://example.com/ws",
		"ws://",
		"ws://exa mple.com",
	} {
		if _, err := Dial(ctx, raw, nil); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("dial %q: %v", raw, err)
		}
	}
}

func TestDialSchemeNormalization(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	es := &EchoServer{}
	srv := httptest.NewServer(es)
	t.Cleanup(srv.Close)

	// http:// targets dial as ws://.
	conn, err := Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial %q: %v", srv.URL, err)
	}
	defer conn.Close(StatusNormalClosure, "")

	if err := conn.Send(ctx, TextMessage("hi")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg, err := conn.Recv(ctx); err != nil || msg.Text() != "hi" {
		t.Fatalf("recv: %#v err=%v", msg, err)
	}
}

func TestDialSubprotocolNegotiation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := newEchoServer(t, &EchoServer{Subprotocols: []string{"chat"}})

	conn, err := Dial(ctx, url, &DialOptions{Subprotocols: []string{"other", "chat"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(StatusNormalClosure, "")
	if got := conn.Subprotocol(); got != "chat" {
		t.Fatalf("subprotocol %q", got)
	}

	plain, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial without offer: %v", err)
	}
	defer plain.Close(StatusNormalClosure, "")
	if got := plain.Subprotocol(); got != "" {
		t.Fatalf("subprotocol without offer %q", got)
	}
}

func TestDialHeaderPassThrough(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			http.Error(w, "missing token", http.StatusForbidden)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, err := Dial(ctx, url, nil); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("dial without header: %v", err)
	}

	h := http.Header{}
	h.Set("X-Token", "secret")
	conn, err := Dial(ctx, url, &DialOptions{Header: h})
	if err != nil {
		t.Fatalf("dial with header: %v", err)
	}
	conn.Close(StatusNormalClosure, "")
}

func TestDialPingAbsorbed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := newWSHandler(t, func(c *websocket.Conn) {
		c.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second))
		c.WriteMessage(websocket.TextMessage, []byte("after-ping"))
		c.ReadMessage()
	})

	conn, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(StatusNormalClosure, "")

	// The ping is answered inside the transport; the first application
	// message is the text that followed it.
	msg, err := conn.Recv(ctx)
	if err != nil || !msg.IsText() || msg.Text() != "after-ping" {
		t.Fatalf("recv: %#v err=%v", msg, err)
	}
}

func TestProbe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := newEchoServer(t, nil)

	d, err := Probe(ctx, url, nil)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if d <= 0 {
		t.Fatalf("probe duration %v", d)
	}
}

func TestDialPreCanceledContext(t *testing.T) {
	url := newEchoServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Dial(ctx, url, nil); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("dial with canceled ctx: %v", err)
	}
}
