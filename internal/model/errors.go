package model

import "errors"

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound = errors.New("player not found")

	// Movement errors
	ErrInvalidRotation = errors.New("rotation quaternion is not a valid orientation")
	ErrInvalidVelocity = errors.New("velocity must be a finite non-negative number")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Location log errors
	ErrStaleCursor = errors.New("requested update id is older than retained history")
)
