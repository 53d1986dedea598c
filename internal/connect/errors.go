package connect

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// ValidationError reports a malformed request. No state is changed when it
// is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// RateLimitError is returned while a cooldown is active for the requester and
// target.
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("cooldown active, try again in %d seconds", e.RetryAfter())
}

// RetryAfter is the remaining cooldown in whole seconds, rounded up.
func (e *RateLimitError) RetryAfter() int {
	return ceilSeconds(e.Remaining)
}

// InternalStorageError wraps a storage failure that happened while a request
// was being applied.
type InternalStorageError struct {
	Op  string
	Err error
}

func (e *InternalStorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalStorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &InternalStorageError{Op: op, Err: err}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
