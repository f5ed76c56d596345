package session

import "errors"

// Domain errors for the session package.
var (
	// ErrNotAuthenticated is returned when an operation is invoked
	// before its prerequisite session state. This is a programming
	// error at the call site, not a condition to retry.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrUnexpectedResponse is returned when the vendor API answers
	// with a shape the workflow cannot use.
	ErrUnexpectedResponse = errors.New("session: unexpected response shape")
)

// AuthError is a credential rejection reported by the vendor API.
// Its message is the server's msg field verbatim so the user sees
// exactly what the upstream said.
type AuthError struct {
	Msg string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.Msg
}
