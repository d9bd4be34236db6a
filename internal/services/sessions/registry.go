package sessions

import (
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
	"github.com/mcoot/driftsync/internal/model"
	"github.com/mcoot/driftsync/internal/services/players"
)

// Registry tracks live sessions and enforces the username index used for
// single-session-per-identity takeover. Usernames are case-insensitive.
type Registry struct {
	clock   clock.Clock
	players *players.Service
	logger  *slog.Logger

	mu         sync.RWMutex
	sessions   map[string]*Session
	byUsername map[string]string
}

// NewRegistry creates a new session registry
func NewRegistry(clk clock.Clock, playerService *players.Service, logger *slog.Logger) *Registry {
	return &Registry{
		clock:      clk,
		players:    playerService,
		logger:     logger.With(slog.String("component", "sessions")),
		sessions:   make(map[string]*Session),
		byUsername: make(map[string]string),
	}
}

// Register creates a session owning conn and stores it
func (r *Registry) Register(conn net.Conn) *Session {
	session := newSession(uuid.NewString(), conn, r.clock)

	r.mu.Lock()
	r.sessions[session.ID()] = session
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session registered",
		slog.String("session_id", session.ID()),
		slog.String("remote_addr", session.RemoteAddr()),
		slog.Int("total_sessions", total))
	return session
}

// Get returns the session for id
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return session, nil
}

// FindByUsername returns the session currently bound to username, if any
func (r *Registry) FindByUsername(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, false
	}
	session, ok := r.sessions[id]
	return session, ok
}

// Authenticate resolves (or creates) the Player for username, binds it to
// the session and installs the username mapping, overwriting any prior
// mapping. The caller is responsible for notifying and closing a prior
// session bound to the same username before calling this.
func (r *Registry) Authenticate(sessionID, username string) (model.Player, error) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return model.Player{}, model.ErrSessionNotFound
	}
	r.byUsername[strings.ToLower(username)] = sessionID
	r.mu.Unlock()

	player := r.players.GetOrCreate(username)
	session.Authenticate(player.Username)

	r.logger.Info("session authenticated",
		slog.String("session_id", sessionID),
		slog.String("username", player.Username))
	return player, nil
}

// Remove unregisters the session and clears its username mapping if it
// still points at this session
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	if username := session.Username(); username != "" {
		key := strings.ToLower(username)
		if r.byUsername[key] == sessionID {
			delete(r.byUsername, key)
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session removed",
		slog.String("session_id", sessionID),
		slog.Int("total_sessions", total))
}

// Authenticated returns every currently authenticated session, for fan-out
func (r *Registry) Authenticated() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.IsAuthenticated() {
			result = append(result, s)
		}
	}
	return result
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AuthenticatedCount returns the number of authenticated sessions
func (r *Registry) AuthenticatedCount() int {
	return len(r.Authenticated())
}

// CleanupIdle closes and removes sessions idle beyond timeout, returning
// how many were cleaned. Closing the stream unblocks each session's read
// loop, which performs the rest of its own teardown.
func (r *Registry) CleanupIdle(timeout time.Duration) int {
	r.mu.RLock()
	var idle []*Session
	for _, s := range r.sessions {
		if s.IdleFor() > timeout {
			idle = append(idle, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range idle {
		r.logger.Info("closing idle session",
			slog.String("session_id", s.ID()),
			slog.Duration("idle", s.IdleFor()))
		if err := s.Close(); err != nil {
			r.logger.Warn("error closing idle session",
				slog.String("session_id", s.ID()),
				slog.String("error", err.Error()))
		}
		r.Remove(s.ID())
	}
	return len(idle)
}
