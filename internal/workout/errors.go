package workout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a session, set or routine id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRoutine blocks Start for a routine without exercises.
	ErrInvalidRoutine = errors.New("routine has no exercises")

	// ErrOrphanSession marks a live session without a valid routine. It is
	// repaired during Load and only ever logged.
	ErrOrphanSession = errors.New("orphan session")

	ErrSessionLive         = errors.New("a workout session is already in progress")
	ErrNoActiveSession     = errors.New("no active session")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrInvalidTransition   = errors.New("invalid session transition")
	ErrOperationInProgress = errors.New("another session operation is in progress")

	errNoop              = errors.New("already in requested state")
	errStoredSessionLive = fmt.Errorf("%w in the store", ErrSessionLive)
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failing field of a rejected input. It never
// reaches the remote store.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the failures.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PersistenceError reports a failed remote store call. The local state was not
// changed, so the operation can be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: change not saved: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persistErr wraps a store failure. NotFound passes through unchanged so
// callers can match it directly.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &PersistenceError{Op: op, Err: err}
}
