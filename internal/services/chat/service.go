package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
)

// MaxMessageLength caps one chat line
const MaxMessageLength = 500

// DefaultMaxHistory bounds retained chat lines
const DefaultMaxHistory = 100

// Entry is one recorded chat line
type Entry struct {
	Username string
	Message  string
	SentAt   time.Time
}

// Service keeps a bounded in-memory history of accepted chat messages
type Service struct {
	clock  clock.Clock
	logger *slog.Logger
	max    int

	mu      sync.Mutex
	history []Entry
}

// New creates a new chat service
func New(clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		clock:  clk,
		logger: logger.With(slog.String("component", "chat")),
		max:    DefaultMaxHistory,
	}
}

// Record appends a chat line, trimming the oldest beyond the history cap
func (s *Service) Record(username, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Entry{
		Username: username,
		Message:  message,
		SentAt:   s.clock.Now(),
	})
	if len(s.history) > s.max {
		s.history = append([]Entry(nil), s.history[len(s.history)-s.max:]...)
	}

	s.logger.Info("chat message",
		slog.String("username", username),
		slog.Int("length", len(message)))
}

// History returns a copy of the retained chat lines, oldest first
func (s *Service) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.history...)
}

// Count returns the number of retained chat lines
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
