package sessions

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
	"github.com/mcoot/driftsync/internal/protocol"
)

// Session is one live connection. It exclusively owns its duplex stream:
// every framed write goes through Send, which holds the session's write
// lock so a response and a broadcast can never interleave mid-frame.
type Session struct {
	id    string
	conn  net.Conn
	clock clock.Clock

	writeMu sync.Mutex

	mu            sync.RWMutex
	authenticated bool
	username      string
	lastActivity  time.Time
}

func newSession(id string, conn net.Conn, clk clock.Clock) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		clock:        clk,
		lastActivity: clk.Now(),
	}
}

// ID returns the opaque session id
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address for logging
func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// Conn exposes the owned stream for the read loop
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Send marshals the envelope and writes one frame under the session's
// write lock
func (s *Session) Send(msg *protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, raw)
}

// Close closes the underlying stream. This is the sole cancellation
// primitive: it unblocks the pending read, which drives cleanup.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Authenticate binds the session to a username
func (s *Session) Authenticate(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.username = username
	s.lastActivity = s.clock.Now()
}

// IsAuthenticated reports whether the session is bound to a player
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Username returns the bound username, empty until authenticated
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Touch records activity on the session
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.clock.Now()
}

// IdleFor returns how long the session has been inactive
func (s *Session) IdleFor() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Since(s.lastActivity)
}

// String describes the session for logs
func (s *Session) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.authenticated {
		return fmt.Sprintf("[session %s] %s as %s", s.id, s.RemoteAddr(), s.username)
	}
	return fmt.Sprintf("[session %s] %s guest", s.id, s.RemoteAddr())
}
