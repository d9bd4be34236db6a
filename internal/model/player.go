package model

import "time"

// Profile holds a player's cosmetic settings.
// ProfileImage is an index into the client's image catalog; -1 means unset.
type Profile struct {
	ProfileImage int
}

// DefaultProfile returns a profile with no image selected
func DefaultProfile() Profile {
	return Profile{ProfileImage: -1}
}

// Player is the persistent (process-lifetime) identity for a username.
// It outlives any single connection; reconnects bind to the same Player.
type Player struct {
	Username  string // canonical casing from first login
	CreatedAt time.Time
	LastSeen  time.Time
	Entity    Entity
	Profile   Profile
}
