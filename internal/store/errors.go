package store

import "errors"

// Domain errors for the store package.
var (
	// ErrNoUser is returned when no user session is persisted.
	ErrNoUser = errors.New("store: no persisted user")

	// ErrLockNotFound is returned when a lock ID has no persisted record.
	ErrLockNotFound = errors.New("store: lock not found")

	// ErrLockExists is returned when adding a lock whose ID is already
	// persisted.
	ErrLockExists = errors.New("store: lock already exists")
)
