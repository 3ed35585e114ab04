package internal

import "sync"

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine owns one connection's lifecycle. Every transition runs
// through it and nothing else mutates the state. Legal paths are
// Connecting to Open, Open to Closing, Closing to Closed, plus the direct
// drops Connecting to Closed and Open to Closed. Closed is terminal.
//
// The machine also records how the connection ended: a close frame seen
// on either side marks the shutdown clean, and the abnormal flag only
// sticks while no frame was ever recorded.
type stateMachine struct {
	mu        sync.Mutex
	cur       State
	frame     *CloseFrame
	abnormal  bool
	delivered bool
}

func newStateMachine() *stateMachine {
	return &stateMachine{cur: StateConnecting}
}

func (sm *stateMachine) state() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cur
}

// open moves Connecting to Open. Any other start state is left alone.
func (sm *stateMachine) open() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cur != StateConnecting {
		return false
	}
	sm.cur = StateOpen
	return true
}

// startClose moves Open to Closing and records the frame the local side
// is sending. False means the shutdown was already under way (or the
// connection never opened), letting callers treat a repeat close as a
// no-op.
func (sm *stateMachine) startClose(frame CloseFrame) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cur != StateOpen {
		return false
	}
	sm.cur = StateClosing
	f := frame
	sm.frame = &f
	return true
}

// close drives the connection to Closed from any state and reports
// whether this call performed the transition. A non-nil frame replaces
// the recorded one; abnormal is ignored once any frame exists.
func (sm *stateMachine) close(frame *CloseFrame, abnormal bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cur == StateClosed {
		return false
	}
	sm.cur = StateClosed
	if frame != nil {
		f := *frame
		sm.frame = &f
	}
	if sm.frame == nil && abnormal {
		sm.abnormal = true
	}
	return true
}

// terminal reports how the connection ended. Meaningful once the state is
// Closed. The returned frame is a copy.
func (sm *stateMachine) terminal() (*CloseFrame, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.frame == nil {
		return nil, sm.abnormal
	}
	f := *sm.frame
	return &f, false
}

// markDelivered records the hand-off of the terminal event to the
// consumer. True exactly once.
func (sm *stateMachine) markDelivered() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.delivered {
		return false
	}
	sm.delivered = true
	return true
}
