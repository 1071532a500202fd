package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a chat, bot, or tool server does not
	// exist in the namespace.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an entry with the given name already
	// exists in the namespace.
	ErrConflict = errors.New("already exists")

	// ErrTurnActive is returned when a second turn is started against a
	// chat that already has one in flight.
	ErrTurnActive = errors.New("turn already in progress")
)
