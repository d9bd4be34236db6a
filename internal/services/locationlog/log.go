package locationlog

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
	"github.com/mcoot/driftsync/internal/model"
)

// DefaultMaxStoredUpdates caps retained history. Beyond a trim, clients
// whose cursor predates the watermark must perform a full resync.
const DefaultMaxStoredUpdates = 1000

// Entry is one immutable movement record
type Entry struct {
	UpdateID   int64
	Username   string
	Entity     model.Entity
	RecordedAt time.Time
}

// Config holds configuration for the location log
type Config struct {
	MaxStoredUpdates int
}

// DefaultConfig returns default location log configuration
func DefaultConfig() Config {
	return Config{MaxStoredUpdates: DefaultMaxStoredUpdates}
}

// Log is the append-only, trimmed history of accepted movement updates.
// Update ids are strictly increasing, assigned under the log's lock so
// assignment order and append order agree.
type Log struct {
	clock  clock.Clock
	logger *slog.Logger
	max    int

	mu             sync.Mutex
	nextUpdateID   int64
	minAvailableID int64
	entries        []Entry
}

// New creates a new location log
func New(clk clock.Clock, cfg Config, logger *slog.Logger) *Log {
	if cfg.MaxStoredUpdates <= 0 {
		cfg.MaxStoredUpdates = DefaultMaxStoredUpdates
	}
	return &Log{
		clock:          clk,
		logger:         logger.With(slog.String("component", "locationlog")),
		max:            cfg.MaxStoredUpdates,
		nextUpdateID:   1,
		minAvailableID: 1,
	}
}

// Append records one accepted movement and returns its update id
func (l *Log) Append(username string, entity model.Entity) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	updateID := l.nextUpdateID
	l.nextUpdateID++

	l.entries = append(l.entries, Entry{
		UpdateID:   updateID,
		Username:   username,
		Entity:     entity,
		RecordedAt: l.clock.Now(),
	})

	if len(l.entries) > l.max {
		trimmed := len(l.entries) - l.max
		l.entries = append([]Entry(nil), l.entries[trimmed:]...)
		l.minAvailableID = l.entries[0].UpdateID
		l.logger.Debug("trimmed location updates",
			slog.Int("removed", trimmed),
			slog.Int64("min_available_id", l.minAvailableID))
	}

	return updateID
}

// UpdatesSince returns all entries with id > lastUpdateID in ascending id
// order. If lastUpdateID points below the retained watermark the log has
// lost information and ErrStaleCursor is returned instead of partial data.
func (l *Log) UpdatesSince(lastUpdateID int64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lastUpdateID > 0 && lastUpdateID < l.minAvailableID {
		return nil, fmt.Errorf("update id %d below watermark %d: %w",
			lastUpdateID, l.minAvailableID, model.ErrStaleCursor)
	}

	var result []Entry
	for _, e := range l.entries {
		if e.UpdateID > lastUpdateID {
			result = append(result, e)
		}
	}
	return result, nil
}

// CurrentUpdateID returns the last assigned update id, 0 if none yet
func (l *Log) CurrentUpdateID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextUpdateID - 1
}

// MinAvailableUpdateID returns the oldest retained update id
func (l *Log) MinAvailableUpdateID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minAvailableID
}
