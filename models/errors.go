package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by admin lookups for a camera id that does not
// exist.
var ErrNotFound = errors.New("not found")

// ValidationError marks malformed input. Handlers turn it into a 400; it is
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError is an expected user-facing condition, not a fault. The
// submission never reached the store.
type RateLimitedError struct {
	ReportType        ReportType
	RetryAfterMinutes int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s for another %d minutes", e.ReportType, e.RetryAfterMinutes)
}

// Message is the exact client-facing string the mobile app displays.
func (e *RateLimitedError) Message() string {
	return fmt.Sprintf("Please wait %d more minutes before reporting another %s",
		e.RetryAfterMinutes, e.ReportType.Label())
}
