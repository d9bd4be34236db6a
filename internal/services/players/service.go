package players

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
	"github.com/mcoot/driftsync/internal/model"
	"github.com/mcoot/driftsync/internal/services/locationlog"
)

// MinQuaternionMagnitude is the smallest magnitude accepted as a valid
// orientation; anything below cannot be normalized meaningfully.
const MinQuaternionMagnitude = 1e-4

// Service owns every Player for the process lifetime and applies the
// dead-reckoning movement model. Players are keyed case-insensitively by
// username and are never removed; reconnects bind to the same Player.
type Service struct {
	clock  clock.Clock
	log    *locationlog.Log
	logger *slog.Logger

	mu           sync.RWMutex
	players      map[string]*model.Player
	nextEntityID model.EntityID
}

// New creates a new player service
func New(clk clock.Clock, log *locationlog.Log, logger *slog.Logger) *Service {
	return &Service{
		clock:        clk,
		log:          log,
		logger:       logger.With(slog.String("component", "players")),
		players:      make(map[string]*model.Player),
		nextEntityID: 1,
	}
}

// GetOrCreate returns the Player for username, allocating it (and its
// entity) on first login. The returned value is a copy; mutations go
// through this service.
func (s *Service) GetOrCreate(username string) model.Player {
	key := strings.ToLower(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[key]
	if !ok {
		now := s.clock.Now()
		p = &model.Player{
			Username:  username,
			CreatedAt: now,
			LastSeen:  now,
			Entity:    model.NewEntity(s.nextEntityID),
			Profile:   model.DefaultProfile(),
		}
		s.nextEntityID++
		s.players[key] = p
		s.logger.Info("player created",
			slog.String("username", username),
			slog.Int("total_players", len(s.players)))
	} else {
		p.LastSeen = s.clock.Now()
	}
	return *p
}

// Get returns a copy of the Player for username
func (s *Service) Get(username string) (model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[strings.ToLower(username)]
	if !ok {
		return model.Player{}, model.ErrPlayerNotFound
	}
	return *p, nil
}

// ApplyMovement validates a (rotation, speed) command, advances the
// player's entity by dead reckoning and appends the result to the
// location log. The server derives the new position itself: the player is
// assumed to have travelled along its previously announced heading at its
// previously announced speed for the elapsed interval, then the new
// rotation and speed take effect.
//
// Rejected commands mutate nothing and produce no log entry.
func (s *Service) ApplyMovement(username string, rotation model.Quat, velocity float64) (int64, model.Entity, error) {
	if !rotation.IsFinite() || rotation.Magnitude() < MinQuaternionMagnitude {
		return 0, model.Entity{}, model.ErrInvalidRotation
	}
	if math.IsNaN(velocity) || math.IsInf(velocity, 0) || velocity < 0 {
		return 0, model.Entity{}, model.ErrInvalidVelocity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[strings.ToLower(username)]
	if !ok {
		return 0, model.Entity{}, model.ErrPlayerNotFound
	}

	now := s.clock.Now()
	prev := p.Entity
	pos := prev.Position
	if prev.Velocity != 0 {
		dt := float64(now.UnixMilli()-prev.TimestampMs) / 1000.0
		pos = pos.Add(prev.Rotation.Forward().Scale(prev.Velocity * dt))
	}

	p.Entity = model.Entity{
		ID:          prev.ID,
		Position:    pos,
		Rotation:    rotation.Normalized(),
		Velocity:    velocity,
		TimestampMs: now.UnixMilli(),
	}
	p.LastSeen = now

	updateID := s.log.Append(p.Username, p.Entity)
	return updateID, p.Entity, nil
}

// SetProfileImage updates a player's profile image index
func (s *Service) SetProfileImage(username string, image int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[strings.ToLower(username)]
	if !ok {
		return model.ErrPlayerNotFound
	}
	p.Profile.ProfileImage = image
	p.LastSeen = s.clock.Now()
	return nil
}

// Snapshot returns a copy of every player's current state
func (s *Service) Snapshot() []model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		result = append(result, *p)
	}
	return result
}

// Count returns the number of known players
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
