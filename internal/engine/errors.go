package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

var (
	ErrNotFound       = model.ErrNotFound
	ErrStatusConflict = model.ErrStatusConflict

	ErrSessionClosed      = errors.New("engine: session closed")
	ErrAlreadyFinished    = errors.New("engine: exam already finished")
	ErrFinalizeInProgress = errors.New("engine: finalization already in progress")
	ErrDeadlinePassed     = errors.New("engine: time limit reached")
	ErrInvalidOption      = errors.New("engine: option must be one of A-E")
)

// NotFoundError reports a missing exam or question set.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PersistenceError wraps a gateway failure. In-memory state is left as is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvariantViolation is fatal to the session that raised it.
type InvariantViolation struct {
	Reason string
	Err    error
}

func (e *InvariantViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violated: %s: %v", e.Reason, e.Err)
	}
	return "invariant violated: " + e.Reason
}

func (e *InvariantViolation) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func violation(reason string, args ...any) *InvariantViolation {
	return &InvariantViolation{Reason: fmt.Sprintf(reason, args...)}
}
