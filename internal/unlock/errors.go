package unlock

import "errors"

// Domain errors for the unlock package.
var (
	// ErrBusy is returned when an unlock is started while another is
	// still in flight on the same orchestrator. The progress state is
	// single-slot; a second concurrent attempt would corrupt it.
	// Callers retry after the in-flight attempt finishes.
	ErrBusy = errors.New("unlock: another unlock is in progress")
)
