package turno

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/agenda"
)

// Rejection reasons surfaced by the validator.
const (
	ReasonPastDate    = "fecha_pasada"
	ReasonHoliday     = "feriado"
	ReasonMaintenance = "mantenimiento"
	ReasonConflict    = "conflicto"
)

// SlotRequest identifies the candidate slot being validated.
type SlotRequest struct {
	Date     time.Time
	Start    agenda.MinuteOfDay
	RoomID   uuid.UUID
	StaffID  uuid.UUID
	CenterID uuid.UUID
}

// ValidationResult is a definite accept/reject. On reject, Conflicts carries
// the minimal identification of each colliding turno (empty for calendar
// rejections).
type ValidationResult struct {
	Accepted  bool
	Reason    string
	Conflicts []Ref
}

func accepted() ValidationResult { return ValidationResult{Accepted: true} }

func rejected(reason string, conflicts []Ref) ValidationResult {
	return ValidationResult{Reason: reason, Conflicts: conflicts}
}

// Validator answers whether a candidate booking can proceed. It is the
// pre-check half of the uniqueness guarantee; the datastore's partial unique
// index re-verifies at write time.
type Validator struct {
	exceptions agenda.ExceptionSource
	repo       Repository
}

func NewValidator(exceptions agenda.ExceptionSource, repo Repository) *Validator {
	return &Validator{exceptions: exceptions, repo: repo}
}

// Validate runs the ordered checks: past date, holiday, maintenance block,
// active turno on the same slot.
func (v *Validator) Validate(ctx context.Context, now time.Time, req SlotRequest) (ValidationResult, error) {
	date := agenda.DateOf(req.Date)
	scheduledAt := date.Add(time.Duration(req.Start) * time.Minute)
	if scheduledAt.Before(now) {
		return rejected(ReasonPastDate, nil), nil
	}

	exceptions, err := v.exceptions.ListExceptions(ctx, req.CenterID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("list exceptions: %w", err)
	}
	for _, ex := range exceptions {
		if ex.Scope == agenda.ScopeHoliday && ex.CenterID == req.CenterID {
			return rejected(ReasonHoliday, nil), nil
		}
	}
	for _, ex := range exceptions {
		if ex.Scope != agenda.ScopeMaintenance || ex.RoomID == nil || *ex.RoomID != req.RoomID {
			continue
		}
		if blockCovers(ex, req.Start) {
			return rejected(ReasonMaintenance, nil), nil
		}
	}

	active, err := v.repo.FindActiveBySlot(ctx, date, req.Start, req.StaffID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("find active turnos: %w", err)
	}
	if len(active) > 0 {
		refs := make([]Ref, 0, len(active))
		for i := range active {
			refs = append(refs, active[i].Ref())
		}
		return rejected(ReasonConflict, refs), nil
	}

	return accepted(), nil
}

// blockCovers reports whether a MAINTENANCE exception's window contains the
// candidate start. A block without any window covers the whole day.
func blockCovers(ex agenda.ExceptionalDay, start agenda.MinuteOfDay) bool {
	if ex.Start == nil && ex.End == nil {
		return true
	}
	from := agenda.MinuteOfDay(0)
	to := agenda.MinuteOfDay(24 * 60)
	if ex.Start != nil {
		from = *ex.Start
	}
	if ex.End != nil {
		to = *ex.End
	} else if ex.Start != nil && ex.DurationMinutes != nil {
		to = *ex.Start + agenda.MinuteOfDay(*ex.DurationMinutes)
	}
	return start >= from && start < to
}
