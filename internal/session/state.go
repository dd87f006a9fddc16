package session

import (
	"fmt"
	"sync"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAwaitingAuth
	StateAuthenticated
	StateClosing
	StateClosed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateClosed || s == StateRejected }

var transitions = map[State][]State{
	StateConnecting:    {StateAwaitingAuth, StateRejected, StateClosed},
	StateAwaitingAuth:  {StateAuthenticated, StateRejected, StateClosed},
	StateAuthenticated: {StateClosing, StateClosed},
	StateClosing:       {StateClosed},
}

// stateMachine guards transitions; it is read by monitoring code while
// the session goroutines advance it.
type stateMachine struct {
	mu       sync.Mutex
	cur      State
	onChange func(from, to State)
}

func (m *stateMachine) get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// to moves to next.  Moving to the current state is a no-op; any other
// transition not in the table is a bug in the caller.
func (m *stateMachine) to(next State) error {
	m.mu.Lock()
	from := m.cur
	if from == next {
		m.mu.Unlock()
		return nil
	}
	ok := false
	for _, s := range transitions[from] {
		if s == next {
			ok = true
			break
		}
	}
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("invalid session transition %s -> %s", from, next)
	}
	m.cur = next
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(from, next)
	}
	return nil
}
