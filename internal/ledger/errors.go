package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no request with the given id exists.
	ErrNotFound = errors.New("request not found")
	// ErrInvalidState is returned when a transition is attempted from a terminal state.
	ErrInvalidState = errors.New("request is not pending")
	// ErrPersistence marks a failed snapshot load or save.
	ErrPersistence = errors.New("ledger persistence failed")
	// ErrEmptyAnswer is returned when resolving with a blank answer.
	ErrEmptyAnswer = errors.New("answer must not be empty")
)

// NotFoundError reports an unknown request id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("request %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports a resolve attempted on a request that already left pending.
type InvalidStateError struct {
	ID     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("request %s is %s, not pending", e.ID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// PersistenceError wraps a Store failure. The in-memory mutation that
// triggered the save has already been applied when this is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Op == "load" {
		return fmt.Sprintf("loading snapshot: %v", e.Err)
	}
	return fmt.Sprintf("saving snapshot after %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
