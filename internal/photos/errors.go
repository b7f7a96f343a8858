// Package photos is a thin client for the Google Photos Library API. It never
// retries: failures are classified into sentinel errors and returned, and an
// HTTP 401 carries capability.ErrCredentialRejected so the access coordinator
// can invalidate and retry once.
package photos

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/photolala/photolala-access/internal/capability"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, photos.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("photos: bad request")
	ErrUnauthorized = fmt.Errorf("photos: unauthorized: %w", capability.ErrCredentialRejected)
	ErrForbidden    = errors.New("photos: forbidden")
	ErrNotFound     = errors.New("photos: not found")
	ErrThrottled    = errors.New("photos: throttled")
	ErrServerError  = errors.New("photos: server error")

	// ErrScopeDenied is a 403 PERMISSION_DENIED: the granted OAuth scopes do
	// not cover the call, so only a fresh sign-in can help.
	ErrScopeDenied = fmt.Errorf("%w: scope denied: %w", ErrForbidden, capability.ErrPermanentAuth)
)

// rpcPermissionDenied is the google.rpc status for insufficient scopes.
const rpcPermissionDenied = "PERMISSION_DENIED"

// APIError wraps a sentinel error with the HTTP status and the API's message.
type APIError struct {
	StatusCode int
	Status     string // google.rpc status, e.g. "UNAUTHENTICATED"
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("photos: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}

	return fmt.Sprintf("photos: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}
		if code >= http.StatusOK && code < http.StatusMultipleChoices {
			return nil
		}

		return ErrBadRequest
	}
}

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrServerError)
}
