package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrUserCancelled = errors.New("cancelled by user")
	ErrNotFound      = errors.New("record not found")
)

// ValidationError reports a missing or malformed field. The attempted save
// is aborted and no state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError reports a failed replica read or write. Writes fail after
// the in-memory change was kept; reads fail before anything changed.
type PersistenceError struct {
	Replica string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Replica, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsWarning reports whether err only carries replica failures, i.e. the
// requested change was applied in memory.
func IsWarning(err error) bool {
	return err != nil && errors.Is(err, ErrPersistence) && !errors.Is(err, ErrValidation)
}
