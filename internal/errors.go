package internal

import (
	"errors"
	"fmt"
)

// Unified error vocabulary. Both backends map every failure onto exactly
// one of these before returning; no transport-native error type crosses
// the adapter boundary. Detail is attached by wrapping, so errors.Is
// keeps working on the sentinels.
var (
	// ErrConnectionFailed reports a handshake or transport setup failure.
	ErrConnectionFailed = errors.New("wsbridge: connection failed")

	// ErrAlreadyClosed reports an operation on a connection that already
	// reached the Closed state.
	ErrAlreadyClosed = errors.New("wsbridge: connection already closed")

	// ErrInvalidURL reports a dial target that does not name a usable
	// WebSocket endpoint.
	ErrInvalidURL = errors.New("wsbridge: invalid url")

	// ErrProtocol reports a transport-level protocol violation.
	ErrProtocol = errors.New("wsbridge: protocol error")

	// ErrIO reports a transport I/O failure while writing or during the
	// closing handshake.
	ErrIO = errors.New("wsbridge: i/o error")

	// ErrAbnormalClosure reports a connection dropped without a close
	// frame, as opposed to a clean, negotiated shutdown.
	ErrAbnormalClosure = errors.New("wsbridge: abnormal closure")
)

// CloseError reports an operation that failed because the peer's close
// frame was discovered underneath a handle that still looked open. A
// clean close observed through Recv arrives as a close message instead.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (e CloseError) Error() string {
	return fmt.Sprintf("wsbridge: connection closed: status = %d, reason = %q", e.Code, e.Reason)
}

// Frame returns the close frame carried by the error.
func (e CloseError) Frame() CloseFrame {
	return CloseFrame{Code: e.Code, Reason: e.Reason}
}

// IsCloseError reports whether err carries a CloseError with one of the
// given codes. With no codes it matches any CloseError.
func IsCloseError(err error, codes ...StatusCode) bool {
	var ce CloseError
	if !errors.As(err, &ce) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ce.Code == c {
			return true
		}
	}
	return false
}

// CloseStatus extracts the closure status from err: the frame code of a
// CloseError, StatusAbnormalClosure for ErrAbnormalClosure, and 0 when
// err carries no closure at all.
func CloseStatus(err error) StatusCode {
	var ce CloseError
	switch {
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrAbnormalClosure):
		return StatusAbnormalClosure
	default:
		return 0
	}
}
