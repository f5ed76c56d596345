package packet

import "errors"

// Domain errors for the packet package.
var (
	// ErrEmptySecret is returned when the lock secret is empty.
	ErrEmptySecret = errors.New("packet: empty lock secret")

	// ErrSecretTooLong is returned when the secret would overflow the
	// single declared-length byte.
	ErrSecretTooLong = errors.New("packet: lock secret too long")

	// ErrSecretNotASCII is returned when the secret contains bytes the
	// one-byte-per-character encoding cannot carry.
	ErrSecretNotASCII = errors.New("packet: lock secret is not printable ASCII")
)
