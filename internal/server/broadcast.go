package server

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/mcoot/driftsync/internal/protocol"
	"github.com/mcoot/driftsync/internal/services/sessions"
)

// Broadcaster fans an event out to every currently authenticated session.
// Each session's write happens under that session's own write lock and
// each failure is contained per peer: one slow or broken connection never
// blocks or aborts delivery to the others.
type Broadcaster struct {
	registry *sessions.Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the registry
func NewBroadcaster(registry *sessions.Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger.With(slog.String("component", "broadcast")),
	}
}

// Send builds an envelope with a fresh id and delivers it to all
// authenticated sessions, returning how many writes succeeded
func (b *Broadcaster) Send(msgType string, payload any) int {
	msg, err := protocol.New(uuid.NewString(), msgType, payload)
	if err != nil {
		b.logger.Error("build broadcast envelope",
			slog.String("type", msgType),
			slog.String("error", err.Error()))
		return 0
	}

	sent := 0
	for _, session := range b.registry.Authenticated() {
		if err := session.Send(msg); err != nil {
			b.logger.Warn("broadcast write failed",
				slog.String("type", msgType),
				slog.String("session_id", session.ID()),
				slog.String("error", err.Error()))
			continue
		}
		sent++
	}
	return sent
}

// Go delivers the broadcast on its own goroutine so the triggering
// request's acknowledgment is never delayed by slow fan-out
func (b *Broadcaster) Go(msgType string, payload any) {
	go b.Send(msgType, payload)
}
