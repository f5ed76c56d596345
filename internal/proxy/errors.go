package proxy

import (
	"errors"
	"fmt"
)

// Domain errors for the proxy package.
var (
	// ErrNotConfigured is returned at construction when no proxy URL
	// is resolvable. This is a deployment mistake, not a runtime fault.
	ErrNotConfigured = errors.New("proxy: proxy URL not configured")

	// ErrEndpointNotFound is returned when the proxy answers 404,
	// which almost always means the configured proxy URL is wrong or
	// the proxy service is not running.
	ErrEndpointNotFound = errors.New("proxy: proxy endpoint not found")

	// ErrRequestFailed is returned for any other non-2xx proxy response.
	ErrRequestFailed = errors.New("proxy: request failed")

	// ErrTimeout is returned when a request exceeds the configured
	// deadline or the caller's context expires first.
	ErrTimeout = errors.New("proxy: request timed out")
)

// maxDiagnosticBody caps how much of an error response body is kept
// for diagnostics.
const maxDiagnosticBody = 500

// Error carries the HTTP status and a bounded response-body snippet
// for a failed proxy round trip. It unwraps to ErrEndpointNotFound or
// ErrRequestFailed so callers can classify without string matching.
type Error struct {
	Status int
	Body   string

	sentinel error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%v: HTTP %d: %s", e.sentinel, e.Status, e.Body)
	}
	return fmt.Sprintf("%v: HTTP %d", e.sentinel, e.Status)
}

// Unwrap exposes the classification sentinel.
func (e *Error) Unwrap() error {
	return e.sentinel
}

// newHTTPError classifies a non-2xx proxy response.
//
// 404 is singled out: it indicates a configuration problem (wrong
// proxy URL, proxy not deployed) rather than an upstream failure, so
// the message carries setup guidance.
func newHTTPError(status int, body []byte, proxyURL string) *Error {
	snippet := string(body)
	if len(snippet) > maxDiagnosticBody {
		snippet = snippet[:maxDiagnosticBody]
	}

	if status == 404 {
		return &Error{
			Status:   status,
			Body:     fmt.Sprintf("check the configured proxy URL %q (proxy not deployed, wrong path, or unreachable). %s", proxyURL, snippet),
			sentinel: ErrEndpointNotFound,
		}
	}

	return &Error{
		Status:   status,
		Body:     snippet,
		sentinel: ErrRequestFailed,
	}
}
