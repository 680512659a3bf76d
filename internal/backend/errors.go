package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned for any 401 response. Callers redirect
// to login and never retry.
var ErrUnauthenticated = errors.New("backend: unauthenticated")

// ErrNotVideo is returned when a downloaded result is not a video payload.
var ErrNotVideo = errors.New("backend: downloaded payload is not a video")

// APIError is a non-success response carrying the server's message.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Retryable reports whether the status is worth polling through.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// TransportError wraps a failure to reach the backend or read its reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried by a poller:
// transport failures and retryable API statuses.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}
