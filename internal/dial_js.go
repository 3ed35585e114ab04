//go:build js

package internal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"syscall/js"
)

// Browser WebSocket readyState values.
const (
	readyStateConnecting = 0
	readyStateOpen       = 1
	readyStateClosing    = 2
	readyStateClosed     = 3
)

// jsConn adapts the browser's callback-driven WebSocket object. The four
// event callbacks are the only producers; Recv drains their events from
// the bounded queue in arrival order. Outbound sends go straight at the
// socket object, which buffers internally without a backpressure signal.
type jsConn struct {
	ws    js.Value
	queue *eventQueue

	// opened is closed by the open callback; dialErr carries the first
	// pre-open failure. Dial waits on one of the two.
	opened  chan struct{}
	dialErr chan error

	handshook atomic.Bool

	listeners   []jsListener
	releaseOnce sync.Once
}

type jsListener struct {
	name string
	fn   js.Func
}

// dialPlatform opens the browser backend. It registers the callbacks,
// then suspends until the open event, a pre-open failure, or ctx. The
// browser performs the handshake itself; headers cannot be attached to a
// browser socket, so opts.Header is ignored here.
func dialPlatform(ctx context.Context, u *url.URL, opts *DialOptions) (*Conn, error) {
	ws, err := newWebSocket(u.String(), opts.Subprotocols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	ws.Set("binaryType", "arraybuffer")

	j := &jsConn{
		ws:      ws,
		queue:   newEventQueue(opts.RecvQueueSize),
		opened:  make(chan struct{}),
		dialErr: make(chan error, 1),
	}
	j.register()

	select {
	case <-j.opened:
	case err := <-j.dialErr:
		j.release()
		j.closeSocket()
		return nil, err
	case <-ctx.Done():
		j.release()
		j.closeSocket()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, ctx.Err())
	}

	sm := newStateMachine()
	sm.open()
	return newConn(j, sm, ws.Get("protocol").String(), opts.Logger), nil
}

func newWebSocket(rawURL string, protocols []string) (ws js.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("new WebSocket: %v", r)
		}
	}()
	ctor := js.Global().Get("WebSocket")
	if len(protocols) == 0 {
		return ctor.New(rawURL), nil
	}
	offered := make([]any, len(protocols))
	for i, p := range protocols {
		offered[i] = p
	}
	return ctor.New(rawURL, offered), nil
}

// register installs the four socket callbacks. Message, error and close
// all funnel into the queue once the handshake is done, preserving their
// arrival order relative to each other.
func (j *jsConn) register() {
	j.on("open", func(js.Value) {
		j.handshook.Store(true)
		close(j.opened)
	})

	j.on("message", func(e js.Value) {
		msg, err := messageFromEvent(e)
		if err != nil {
			j.fail(err)
			return
		}
		j.enqueue(queueItem{msg: msg})
	})

	j.on("error", func(js.Value) {
		// The browser's security model withholds failure detail.
		j.fail(fmt.Errorf("%w: the browser reported a websocket error", ErrConnectionFailed))
	})

	j.on("close", func(e js.Value) {
		code := StatusCode(e.Get("code").Int())
		reason := e.Get("reason").String()
		clean := e.Get("wasClean").Bool()

		if !j.handshook.Load() {
			j.dialFail(fmt.Errorf("%w: closed before open: status = %d, reason = %q", ErrConnectionFailed, code, reason))
		} else if clean {
			j.enqueue(queueItem{msg: CloseMessage(&CloseFrame{Code: code, Reason: reason})})
		} else {
			j.enqueue(queueItem{err: fmt.Errorf("%w: status = %d", ErrAbnormalClosure, code)})
		}

		// close is the last event a socket fires; the callbacks can go.
		go j.release()
	})
}

func (j *jsConn) on(name string, fn func(js.Value)) {
	f := js.FuncOf(func(this js.Value, args []js.Value) any {
		var e js.Value
		if len(args) > 0 {
			e = args[0]
		}
		fn(e)
		return nil
	})
	j.ws.Call("addEventListener", name, f)
	j.listeners = append(j.listeners, jsListener{name: name, fn: f})
}

// release deregisters every callback so nothing can fire into a retired
// handle, then frees the function values.
func (j *jsConn) release() {
	j.releaseOnce.Do(func() {
		for _, l := range j.listeners {
			j.ws.Call("removeEventListener", l.name, l.fn)
			l.fn.Release()
		}
		j.listeners = nil
	})
}

func (j *jsConn) closeSocket() {
	state := j.ws.Get("readyState").Int()
	if state == readyStateConnecting || state == readyStateOpen {
		_ = j.call("close")
	}
}

// fail reports an error through the channel matching the connection
// phase: the dial waiter before open, the event queue after.
func (j *jsConn) fail(err error) {
	if !j.handshook.Load() {
		j.dialFail(err)
		return
	}
	j.enqueue(queueItem{err: err})
}

func (j *jsConn) dialFail(err error) {
	select {
	case j.dialErr <- err:
	default:
	}
}

func (j *jsConn) enqueue(it queueItem) {
	if j.queue.push(it) {
		return
	}
	// Past the cap there is no way to slow the peer down. The socket is
	// torn down; the drained queue reports the abnormal closure.
	j.closeSocket()
}

func (j *jsConn) recv(ctx context.Context) (Message, error) {
	it, err := j.queue.pop(ctx)
	if err != nil {
		return Message{}, err
	}
	if it.err != nil {
		return Message{}, it.err
	}
	return it.msg, nil
}

func (j *jsConn) send(_ context.Context, m Message) error {
	var err error
	if m.IsText() {
		err = j.call("send", string(m.Data))
	} else {
		u8 := js.Global().Get("Uint8Array").New(len(m.Data))
		js.CopyBytesToJS(u8, m.Data)
		err = j.call("send", u8)
	}
	if err != nil {
		return fmt.Errorf("%w: send: %v", ErrIO, err)
	}
	return nil
}

func (j *jsConn) close(code StatusCode, reason string) error {
	if err := j.call("close", int(code), reason); err != nil {
		return fmt.Errorf("%w: close: %v", ErrProtocol, err)
	}
	return nil
}

// call invokes a socket method, converting a thrown exception into an
// error instead of a panic.
func (j *jsConn) call(name string, args ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	j.ws.Call(name, args...)
	return nil
}

// messageFromEvent converts a message event payload. Text arrives as a JS
// string and binary as an ArrayBuffer, since binaryType is fixed at
// construction. The Blob branch is a guard against hosts that ignore
// binaryType.
func messageFromEvent(e js.Value) (Message, error) {
	data := e.Get("data")
	switch data.Type() {
	case js.TypeString:
		return TextMessage(data.String()), nil
	case js.TypeObject:
		if instanceOf(data, "ArrayBuffer") {
			u8 := js.Global().Get("Uint8Array").New(data)
			b := make([]byte, u8.Length())
			js.CopyBytesToGo(b, u8)
			return BinaryMessage(b), nil
		}
		if instanceOf(data, "Blob") {
			return Message{}, fmt.Errorf("%w: blob payload despite arraybuffer binaryType", ErrProtocol)
		}
	}
	return Message{}, fmt.Errorf("%w: unsupported message payload of type %s", ErrProtocol, data.Type())
}

func instanceOf(v js.Value, class string) bool {
	c := js.Global().Get(class)
	return c.Type() == js.TypeFunction && v.InstanceOf(c)
}
