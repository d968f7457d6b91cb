package task

import (
	"errors"
	"fmt"
)

// ErrTimeout marks an executor that exceeded its allotted duration.
var ErrTimeout = errors.New("executor timed out")

// ValidationError rejects a malformed task definition before persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid task: " + e.Reason
	}
	return fmt.Sprintf("invalid task %s: %s", e.Field, e.Reason)
}

// NotFoundError references a nonexistent (category, index).
type NotFoundError struct {
	Category Category
	Index    int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s[%d] not found", e.Category, e.Index)
}

// ConfigurationError means dispatch cannot resolve (category, type).
type ConfigurationError struct {
	Category Category
	Type     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s/%s", ReasonUnknownType, e.Category, e.Type)
}

// Transient marks an executor failure as retryable at the next natural window.
//
// Example:
//
//	return task.Transient(fmt.Errorf("upload: %w", err))
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err is wrapped with Transient.
func IsTransient(err error) bool {
	var e transientError
	return errors.As(err, &e)
}

type transientError struct{ err error }

func (e transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e transientError) Unwrap() error { return e.err }

// Fatal marks a persistence failure that must halt the scheduler loop.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return fatalError{err: err}
}

// IsFatal reports whether err is wrapped with Fatal.
func IsFatal(err error) bool {
	var e fatalError
	return errors.As(err, &e)
}

type fatalError struct{ err error }

func (e fatalError) Error() string { return fmt.Sprintf("fatal: %v", e.err) }
func (e fatalError) Unwrap() error { return e.err }
