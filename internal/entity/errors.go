package entity

import "errors"

// Domain errors for the entity package.
var (
	// ErrInvalidShareLink is returned when a lock share link does not
	// decode to exactly the expected field sequence.
	ErrInvalidShareLink = errors.New("entity: invalid lock share link")

	// ErrIncompleteLock is returned when a lock record is missing a
	// mandatory field.
	ErrIncompleteLock = errors.New("entity: incomplete lock record")
)
