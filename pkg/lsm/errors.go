package lsm

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrKeyDeleted     = errors.New("key deleted")
	ErrReservedValue  = errors.New("value is reserved as the deletion marker")
	ErrClosed         = errors.New("database is closed")
	ErrInvalidOptions = errors.New("invalid options")
)

// IsAbsent reports whether err means the key has no live value
func IsAbsent(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrKeyDeleted)
}

// StorageError provides structured information for failed file operations.
type StorageError struct {
	Op    string // Operation that failed (e.g., "flush", "merge", "read page")
	Level int    // Level of the file involved, 0 if none
	Path  string // File path, if any
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	switch {
	case e.Path != "" && e.Level > 0:
		return fmt.Sprintf("%s L%d (%s): %v", e.Op, e.Level, e.Path, e.Cause)
	case e.Path != "":
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Path, e.Cause)
	case e.Level > 0:
		return fmt.Sprintf("%s L%d: %v", e.Op, e.Level, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error's cause.
func (e *StorageError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

func wrapIO(op string, level int, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Level: level, Path: path, Cause: err}
}
