package turno

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("turno not found")

	// ErrAlreadyCancelled is the idempotency guard: re-cancelling is a
	// distinct, softer failure than an illegal transition.
	ErrAlreadyCancelled = errors.New("turno already cancelled")

	// ErrSlotTaken is raised by the repository when the partial unique index
	// on (fecha, hora_inicio, staff_id) rejects an insert. The service
	// translates it into a ConflictError carrying the colliding turnos.
	ErrSlotTaken = errors.New("slot already taken by an active turno")

	// ErrStaleState means the conditional state update matched no row: the
	// turno moved concurrently between read and write.
	ErrStaleState = errors.New("turno state changed concurrently")

	// ErrNotYetElapsed guards marcar-ausente before the scheduled time.
	ErrNotYetElapsed = errors.New("turno scheduled time has not elapsed")

	// ErrAuditWrite wraps a failed audit insert; the surrounding transaction
	// rolls back so no state change is observable without its audit record.
	ErrAuditWrite = errors.New("audit write failed")
)

// ValidationError reports malformed input. Never retried automatically.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Msg)
}

// ConflictError carries the colliding appointments so callers can offer a
// confirmation/override flow. The engine never silently overwrites.
type ConflictError struct {
	Reason    string
	Conflicts []Ref
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflict (%s): %d colliding turno(s)", e.Reason, len(e.Conflicts))
}

// InvalidTransitionError reports an illegal state-machine move.
type InvalidTransitionError struct {
	From Estado
	Op   Operation
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("operation %s is not legal from state %s", e.Op, e.From)
}
