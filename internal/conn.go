package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// backend is one platform transport behind a Conn. Implementations map
// every failure into the unified error vocabulary before returning.
type backend interface {
	recv(ctx context.Context) (Message, error)
	send(ctx context.Context, m Message) error
	close(code StatusCode, reason string) error
}

// Conn is a WebSocket connection handle. It behaves identically whether
// the build selected the native transport or the browser transport; the
// backend is fixed at dial time and the state machine, error vocabulary
// and ordering guarantees are shared.
type Conn struct {
	b           backend
	sm          *stateMachine
	subprotocol string
	log         *zap.Logger

	// sendMu serializes sends: one in-flight send per connection,
	// admitted in lock-acquisition order. recvMu does the same for
	// receives.
	sendMu sync.Mutex
	recvMu sync.Mutex
}

func newConn(b backend, sm *stateMachine, subprotocol string, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{b: b, sm: sm, subprotocol: subprotocol, log: log}
}

// State reports the connection's lifecycle state.
func (c *Conn) State() State { return c.sm.state() }

// Subprotocol reports the sub-protocol negotiated during the handshake,
// or "" when none was.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// Recv returns the next incoming message. Messages arrive in exactly the
// order the transport produced them, with no reordering between data,
// error and close events. The sequence is finite: after the data messages
// it yields one terminal event, a close message when the shutdown was
// clean (remote or local) or an error when it was not, and every call
// after that returns ErrAlreadyClosed.
//
// Canceling ctx abandons the wait and returns the context error without
// ending the sequence. On the native transport a canceled read also
// invalidates the underlying connection, so the next call surfaces the
// terminal event.
func (c *Conn) Recv(ctx context.Context) (Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.sm.state() == StateClosed {
		return c.takeTerminal()
	}

	msg, err := c.b.recv(ctx)
	if err != nil {
		return c.finishRecv(err)
	}
	if msg.IsClose() {
		if c.sm.close(msg.Close, false) {
			observeConnClosed("client", "clean")
		}
		c.sm.markDelivered()
		c.logClose(msg.Close)
		return msg, nil
	}
	observeMessage("client", "recv", msg.Type, len(msg.Data))
	return msg, nil
}

// takeTerminal hands out the terminal event exactly once after Closed,
// then reports ErrAlreadyClosed.
func (c *Conn) takeTerminal() (Message, error) {
	if !c.sm.markDelivered() {
		return Message{}, ErrAlreadyClosed
	}
	frame, abnormal := c.sm.terminal()
	if abnormal {
		return Message{}, ErrAbnormalClosure
	}
	c.logClose(frame)
	return CloseMessage(frame), nil
}

// finishRecv folds a backend receive failure into the terminal protocol:
// context errors pass through without ending the sequence, a discovered
// close frame becomes the close message, everything else ends the
// connection with the mapped error.
func (c *Conn) finishRecv(err error) (Message, error) {
	if isCtxErr(err) {
		return Message{}, err
	}
	var ce CloseError
	if errors.As(err, &ce) {
		f := ce.Frame()
		if c.sm.close(&f, false) {
			observeConnClosed("client", "clean")
		}
		c.sm.markDelivered()
		c.logClose(&f)
		return CloseMessage(&f), nil
	}
	if c.sm.close(nil, true) {
		observeConnClosed("client", "abnormal")
	}
	c.sm.markDelivered()
	return Message{}, err
}

// Send transmits one message and reports the result. Sends from multiple
// goroutines serialize: exactly one send is in flight per connection,
// admitted in lock order. A close message is routed through Close so the
// shutdown bookkeeping stays in one place.
//
// The browser transport buffers outbound data internally and exposes no
// backpressure signal, so a nil return there means the message was
// accepted, not delivered.
func (c *Conn) Send(ctx context.Context, m Message) error {
	if m.IsClose() {
		code, reason := StatusNormalClosure, ""
		if m.Close != nil {
			code, reason = m.Close.Code, m.Close.Reason
		}
		return c.Close(code, reason)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	switch c.sm.state() {
	case StateOpen:
	case StateConnecting:
		// Dial hands out open connections only, so a send cannot arrive
		// before the handshake and nothing is ever buffered pre-open.
		return fmt.Errorf("%w: connection not open", ErrConnectionFailed)
	default:
		return ErrAlreadyClosed
	}

	err := c.b.send(ctx, m)
	if err == nil {
		observeMessage("client", "send", m.Type, len(m.Data))
		return nil
	}
	if isCtxErr(err) {
		return err
	}
	var ce CloseError
	if errors.As(err, &ce) {
		f := ce.Frame()
		if c.sm.close(&f, false) {
			observeConnClosed("client", "clean")
		}
	} else if c.sm.close(nil, true) {
		observeConnClosed("client", "abnormal")
	}
	return err
}

// Close performs the closing handshake with the given code and reason.
// It is idempotent: the first call initiates the shutdown and any later
// call returns nil with no effect. Browsers only permit sending code 1000
// or codes 3000 through 4999, so the same restriction applies on every
// platform.
//
// After a clean local close, Recv still delivers the close frame as the
// sequence's terminal message.
func (c *Conn) Close(code StatusCode, reason string) error {
	if err := checkCloseCode(code); err != nil {
		return err
	}
	if !c.sm.startClose(CloseFrame{Code: code, Reason: reason}) {
		return nil
	}
	err := c.b.close(code, reason)
	if c.sm.close(nil, false) {
		observeConnClosed("client", "local")
	}
	if err != nil {
		c.log.Debug("close handshake failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *Conn) logClose(frame *CloseFrame) {
	if frame == nil {
		c.log.Debug("connection closed without a close frame")
		return
	}
	c.log.Debug("connection closed",
		zap.Uint16("code", uint16(frame.Code)),
		zap.String("reason", frame.Reason))
}

func checkCloseCode(code StatusCode) error {
	if code == StatusNormalClosure || (code >= 3000 && code <= 4999) {
		return nil
	}
	return fmt.Errorf("%w: close code %d is not sendable from a client", ErrProtocol, code)
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
