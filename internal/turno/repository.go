package turno

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
)

// Repository contains all DB interactions needed by the service. InsertAudit
// lives here rather than in the audit package so a mutation and its audit
// record share one transaction.
type Repository interface {
	Find(ctx context.Context, id uuid.UUID) (*Turno, error)

	// FindActiveBySlot returns every non-cancelled turno claiming
	// (date, start, staffID): the application-level side of the uniqueness
	// invariant.
	FindActiveBySlot(ctx context.Context, date time.Time, start agenda.MinuteOfDay, staffID uuid.UUID) ([]Turno, error)

	Insert(ctx context.Context, t *Turno) error

	// ConditionalUpdateState performs the atomic "set state from X to Y only
	// if still X" write that makes transitions linearizable per turno.
	ConditionalUpdateState(ctx context.Context, id uuid.UUID, expected, next Estado) (*Turno, error)

	// SetAttendance persists the attendance flag written by the COMPLETO and
	// AUSENTE transitions.
	SetAttendance(ctx context.Context, id uuid.UUID, attended bool) error

	ListByDateRange(ctx context.Context, from, to time.Time) ([]Turno, error)

	// ListPendingInWindow feeds the auto-cancellation sweep: PROGRAMADO
	// turnos whose scheduled time falls strictly between from and to.
	ListPendingInWindow(ctx context.Context, from, to time.Time) ([]Turno, error)

	InsertAudit(ctx context.Context, rec *audit.Record) error

	// Delete is the administrative removal flow; callers must have written
	// an audit record in the same transaction first.
	Delete(ctx context.Context, id uuid.UUID) error

	// InTx runs fn against a transaction-bound repository; fn returning an
	// error rolls everything back.
	InTx(ctx context.Context, fn func(Repository) error) error
}
