package submit

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyContent      = errors.New("content is empty")
	ErrMissingCredential = errors.New("api credential is not configured")
	ErrNotText           = errors.New("content is not text")

	// ErrCancelled is returned when the user declines the payment prompt.
	// Nothing was sent.
	ErrCancelled = errors.New("submission cancelled")
	// ErrBusy is returned while another submission is in flight.
	ErrBusy = errors.New("submission already in progress")
)

// ValidationError is a local rejection. No request was made.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid submission: %v (%s)", e.Err, e.Detail)
	}
	return fmt.Sprintf("invalid submission: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
