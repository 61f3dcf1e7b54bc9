package types

import "errors"

// Entity lookup and validation errors.
var (
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidID       = errors.New("invalid entity ID")
	ErrInvalidData     = errors.New("invalid entity data")
	ErrInvalidTitle    = errors.New("title must not be empty")
	ErrNothingToUpdate = errors.New("at least one field must be provided for update")
)

// Ranking errors.
var (
	// ErrConflict is returned by Transfer when the destination column is the
	// column the task already belongs to.
	ErrConflict = errors.New("destination column equals current column")

	// ErrTransient marks storage failures after which the whole operation
	// may be retried from a fresh read (busy database, serialization
	// failure, a task that moved between read and lock).
	ErrTransient = errors.New("transient storage failure")

	// ErrDensity is returned when a column's ordinals are not exactly 1..N.
	ErrDensity = errors.New("ordinals are not dense")
)

// Store lifecycle errors.
var (
	ErrDetached        = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// transientError keeps the original storage error reachable through Unwrap
// while also matching ErrTransient.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// MarkTransient wraps err so that errors.Is(err, ErrTransient) holds.
// A nil error, or one already marked, is returned unchanged.
func MarkTransient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}

// IsUserError reports whether err stems from caller input rather than from
// the storage layer.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrConflict, ErrInvalidID, ErrInvalidData,
		ErrInvalidTitle, ErrNothingToUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
