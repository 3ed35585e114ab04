package internal

import "fmt"

// MessageType matches the RFC 6455 opcodes that cross the public surface.
// Ping and pong are deliberately absent: the browser transport never
// exposes them to the application, so the unified vocabulary cannot
// promise them either. The native transport answers pings internally.
type MessageType uint8

const (
	MessageText   MessageType = 1
	MessageBinary MessageType = 2
	MessageClose  MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	case MessageClose:
		return "close"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// StatusCode is an RFC 6455 section 7.4 close status code.
type StatusCode uint16

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusUnsupportedData StatusCode = 1003

	// StatusNoStatusRcvd and StatusAbnormalClosure are reserved for
	// reporting; they never travel inside a close frame on the wire.
	StatusNoStatusRcvd    StatusCode = 1005
	StatusAbnormalClosure StatusCode = 1006

	StatusInvalidFramePayloadData StatusCode = 1007
	StatusPolicyViolation         StatusCode = 1008
	StatusMessageTooBig           StatusCode = 1009
	StatusMandatoryExtension      StatusCode = 1010
	StatusInternalError           StatusCode = 1011
	StatusServiceRestart          StatusCode = 1012
	StatusTryAgainLater           StatusCode = 1013
	StatusBadGateway              StatusCode = 1014
	StatusTLSHandshake            StatusCode = 1015
)

// CloseFrame is the code and reason pair exchanged during an orderly
// shutdown.
type CloseFrame struct {
	Code   StatusCode
	Reason string
}

// Message is one WebSocket message as the application sees it. Type keys
// which of the remaining fields is meaningful.
type Message struct {
	Type MessageType

	// Data holds the payload of a text or binary message.
	Data []byte

	// Close holds the frame of a close message. A nil Close on a
	// MessageClose means the peer closed without sending a frame.
	Close *CloseFrame
}

func TextMessage(s string) Message {
	return Message{Type: MessageText, Data: []byte(s)}
}

func BinaryMessage(b []byte) Message {
	return Message{Type: MessageBinary, Data: b}
}

func CloseMessage(frame *CloseFrame) Message {
	return Message{Type: MessageClose, Close: frame}
}

func (m Message) IsText() bool   { return m.Type == MessageText }
func (m Message) IsBinary() bool { return m.Type == MessageBinary }
func (m Message) IsClose() bool  { return m.Type == MessageClose }

// Text returns the payload interpreted as UTF-8 text.
func (m Message) Text() string { return string(m.Data) }
