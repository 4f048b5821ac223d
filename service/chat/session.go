package chat

import (
	"sync"
)

// SessionState is the lifecycle stage of one client connection.
type SessionState int8

const (
	// Unregistered sessions may still send chat messages.
	Unregistered SessionState = iota
	// Registered sessions have an identity bound in the registry.
	Registered
	// Closed is terminal.
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unregistered:
		return "Unregistered"
	case Registered:
		return "Registered"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session tracks the identity a connection registered with, so it can be
// unbound when the connection goes away.
type Session struct {
	ID     string
	Conn   Connection
	Remote string

	mu       sync.Mutex
	state    SessionState
	identity string
}

func NewSession(conn Connection, remote string) *Session {
	return &Session{
		ID:     conn.ID(),
		Conn:   conn,
		Remote: remote,
		state:  Unregistered,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound identity, if any.
func (s *Session) Identity() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.state == Registered
}

// bind records user as this session's identity and reports the identity it
// replaces. ok is false once the session is closed.
func (s *Session) bind(user string) (prev string, hadPrev bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return "", false, false
	}
	prev, hadPrev = s.identity, s.state == Registered
	s.identity = user
	s.state = Registered
	return prev, hadPrev, true
}

// close moves the session to Closed. first is true only for the call that
// performed the transition.
func (s *Session) close() (user string, registered bool, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return "", false, false
	}
	user, registered = s.identity, s.state == Registered
	s.state = Closed
	return user, registered, true
}
