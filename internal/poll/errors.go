package poll

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTries is returned when tries is zero or negative
	ErrInvalidTries = errors.New("poll: tries must be at least 1")

	// ErrInvalidTimeout is returned when the delay between attempts is negative
	ErrInvalidTimeout = errors.New("poll: timeout must not be negative")

	// ErrTransient marks a probe failure that may clear up on a later attempt
	ErrTransient = errors.New("transient")
)

// transientError wraps a probe failure so that errors.Is(err, ErrTransient) holds
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

func (e *transientError) Is(target error) bool {
	return target == ErrTransient
}

// Transient marks err as transient. Returns nil for a nil error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

// Transientf formats an error and marks it as transient
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// IsTransient reports whether err, or anything it wraps, was marked transient
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
