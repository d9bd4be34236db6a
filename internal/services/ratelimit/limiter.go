package ratelimit

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
)

// ErrRateLimited is returned when a session has exceeded its request
// budget or is inside a ban window
var ErrRateLimited = errors.New("rate limit exceeded")

// Config holds rate limiter settings. The window and ban are per-session:
// one abusive connection cannot throttle others.
type Config struct {
	MaxRequests     int
	Window          time.Duration
	BanDuration     time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the deployed limiter settings
func DefaultConfig() Config {
	return Config{
		MaxRequests:     50,
		Window:          10 * time.Second,
		BanDuration:     60 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

type sessionWindow struct {
	timestamps  []time.Time
	bannedUntil time.Time
}

// Limiter admits or refuses requests per session using a sliding window,
// imposing a temporary ban on violation. Entries are created lazily and
// swept opportunistically once idle beyond twice the window.
type Limiter struct {
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config

	mu          sync.Mutex
	sessions    map[string]*sessionWindow
	lastCleanup time.Time
}

// New creates a new Limiter
func New(clk clock.Clock, cfg Config, logger *slog.Logger) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{
		clock:       clk,
		logger:      logger.With(slog.String("component", "ratelimit")),
		cfg:         cfg,
		sessions:    make(map[string]*sessionWindow),
		lastCleanup: clk.Now(),
	}
}

// Allow admits the request and records its timestamp, or returns
// ErrRateLimited. A session that fills its window is banned for the
// configured duration; requests during the ban are refused without
// touching the window.
func (l *Limiter) Allow(sessionID string) error {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now)

	sw, ok := l.sessions[sessionID]
	if !ok {
		sw = &sessionWindow{}
		l.sessions[sessionID] = sw
	}

	if !sw.bannedUntil.IsZero() {
		if now.Before(sw.bannedUntil) {
			l.logger.Warn("blocked banned session",
				slog.String("session_id", sessionID),
				slog.Duration("remaining", sw.bannedUntil.Sub(now)))
			return ErrRateLimited
		}
		// Ban expired, start from a clean window
		sw.bannedUntil = time.Time{}
		sw.timestamps = sw.timestamps[:0]
		l.logger.Info("ban expired", slog.String("session_id", sessionID))
	}

	windowStart := now.Add(-l.cfg.Window)
	kept := sw.timestamps[:0]
	for _, t := range sw.timestamps {
		if !t.Before(windowStart) {
			kept = append(kept, t)
		}
	}
	sw.timestamps = kept

	if len(sw.timestamps) >= l.cfg.MaxRequests {
		sw.bannedUntil = now.Add(l.cfg.BanDuration)
		l.logger.Warn("session exceeded rate limit",
			slog.String("session_id", sessionID),
			slog.Int("requests_in_window", len(sw.timestamps)),
			slog.Duration("ban", l.cfg.BanDuration))
		return ErrRateLimited
	}

	sw.timestamps = append(sw.timestamps, now)
	return nil
}

// ClearSession drops a disconnected session's window state
func (l *Limiter) ClearSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
}

// cleanupLocked sweeps entries with no activity inside 2x the window.
// Time-gated so the sweep cost is amortized across requests rather than
// running on its own goroutine.
func (l *Limiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cfg.CleanupInterval {
		return
	}
	l.lastCleanup = now

	cutoff := now.Add(-2 * l.cfg.Window)
	removed := 0
	for id, sw := range l.sessions {
		if !sw.bannedUntil.IsZero() {
			continue
		}
		active := false
		for _, t := range sw.timestamps {
			if t.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(l.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Info("cleaned up inactive sessions", slog.Int("removed", removed))
	}
}
