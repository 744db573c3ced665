package turno

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/actor"
	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
	"github.com/clinagenda/turnos/internal/notify"
	"github.com/clinagenda/turnos/internal/observability/metrics"
	redisclient "github.com/clinagenda/turnos/internal/redis"
	"github.com/clinagenda/turnos/pkg/logging"
)

// ErrSlotBeingBooked means another caller currently holds the slot lock.
var ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

// BookingRequest carries everything needed to create a turno. Physician,
// specialty and center ids are captured verbatim into the appointment so the
// record survives later staff re-association.
type BookingRequest struct {
	Date         time.Time
	Start        agenda.MinuteOfDay
	End          agenda.MinuteOfDay
	PatientID    uuid.UUID
	StaffID      uuid.UUID
	PhysicianID  uuid.UUID
	RoomID       uuid.UUID
	SpecialtyID  uuid.UUID
	CenterID     uuid.UUID
	Observations string
}

// Service owns booking and the appointment state machine. Every mutation
// writes exactly one audit record in the same transaction; an audit failure
// rolls the whole operation back.
type Service struct {
	repo      Repository
	validator *Validator
	locker    redisclient.Locker
	notifier  notify.Notifier
	metrics   *metrics.SchedulerMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(repo Repository, validator *Validator, locker redisclient.Locker, notifier notify.Notifier, m *metrics.SchedulerMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		validator: validator,
		locker:    locker,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. Intended for tests and for the
// sweep worker, which passes an explicit "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (req BookingRequest) validate() error {
	switch {
	case req.Date.IsZero():
		return &ValidationError{Field: "date", Msg: "required"}
	case req.Start < 0 || req.Start >= 24*60:
		return &ValidationError{Field: "start", Msg: "outside the day"}
	case req.End <= req.Start:
		return &ValidationError{Field: "end", Msg: "must be after start"}
	case req.PatientID == uuid.Nil:
		return &ValidationError{Field: "patient_id", Msg: "required"}
	case req.StaffID == uuid.Nil:
		return &ValidationError{Field: "staff_id", Msg: "required"}
	case req.PhysicianID == uuid.Nil:
		return &ValidationError{Field: "physician_id", Msg: "required"}
	case req.RoomID == uuid.Nil:
		return &ValidationError{Field: "room_id", Msg: "required"}
	case req.CenterID == uuid.Nil:
		return &ValidationError{Field: "center_id", Msg: "required"}
	}
	return nil
}

// Book validates the candidate slot and creates a PROGRAMADO turno. The
// distributed slot lock narrows the race window between check and insert;
// the partial unique index closes it.
func (s *Service) Book(ctx context.Context, req BookingRequest, performedBy string) (*Turno, error) {
	if err := req.validate(); err != nil {
		s.metrics.ObserveBooking("rejected")
		return nil, err
	}
	performedBy = ensureActor(performedBy)
	started := s.now()

	var created *Turno
	slotKey := redisclient.SlotKey(agenda.DateOf(req.Date), int(req.Start), req.StaffID)

	err := s.locker.WithSlotLock(ctx, slotKey, func(lockCtx context.Context) error {
		res, err := s.validator.Validate(lockCtx, s.now(), SlotRequest{
			Date:     req.Date,
			Start:    req.Start,
			RoomID:   req.RoomID,
			StaffID:  req.StaffID,
			CenterID: req.CenterID,
		})
		if err != nil {
			return err
		}
		if !res.Accepted {
			if res.Reason == ReasonConflict {
				return &ConflictError{Reason: res.Reason, Conflicts: res.Conflicts}
			}
			return &ValidationError{Field: "slot", Msg: res.Reason}
		}

		return s.repo.InTx(lockCtx, func(r Repository) error {
			staffID := req.StaffID
			t := &Turno{
				Date:         agenda.DateOf(req.Date),
				Start:        req.Start,
				End:          req.End,
				Estado:       EstadoProgramado,
				PatientID:    req.PatientID,
				StaffID:      &staffID,
				PhysicianID:  req.PhysicianID,
				RoomID:       req.RoomID,
				SpecialtyID:  req.SpecialtyID,
				CenterID:     req.CenterID,
				Observations: req.Observations,
			}
			if err := r.Insert(lockCtx, t); err != nil {
				return err
			}
			if err := r.InsertAudit(lockCtx, &audit.Record{
				EntityType:  audit.EntityTurno,
				EntityID:    t.ID,
				Action:      audit.ActionCrear,
				PerformedBy: performedBy,
				StateAfter:  t.Snapshot(),
			}); err != nil {
				return fmt.Errorf("%w: %v", ErrAuditWrite, err)
			}
			created = t
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveBooking("locked")
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			// Lost the race despite the lock (e.g. lock expiry): translate
			// the constraint violation into the same conflict outcome.
			conflicts, lookupErr := s.repo.FindActiveBySlot(ctx, req.Date, req.Start, req.StaffID)
			if lookupErr != nil {
				s.logger.Error("load conflicting turnos", "error", lookupErr)
			}
			refs := make([]Ref, 0, len(conflicts))
			for i := range conflicts {
				refs = append(refs, conflicts[i].Ref())
			}
			s.metrics.ObserveBooking("conflict")
			return nil, &ConflictError{Reason: ReasonConflict, Conflicts: refs}
		}
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("error")
		}
		return nil, err
	}

	s.metrics.ObserveBooking("booked")
	s.metrics.ObserveBookingLatency(s.now().Sub(started).Seconds())
	s.dispatch(ctx, created.ID, notify.EventTurnoCreado)
	return created, nil
}

// Confirm moves a PROGRAMADO turno to CONFIRMADO.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, performedBy string) (*Turno, error) {
	return s.transition(ctx, id, OpConfirmar, "", performedBy, nil, notify.EventTurnoConfirmado)
}

// Cancel is legal from every state except CANCELADO; re-cancelling returns
// ErrAlreadyCancelled and writes no second audit record.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, performedBy string) (*Turno, error) {
	return s.transition(ctx, id, OpCancelar, reason, performedBy, nil, notify.EventTurnoCancelado)
}

// Complete closes a CONFIRMADO turno as attended.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, performedBy string) (*Turno, error) {
	return s.transition(ctx, id, OpCompletar, "", performedBy, nil, "")
}

// MarkAbsent records a no-show. Only legal once the scheduled time elapsed.
func (s *Service) MarkAbsent(ctx context.Context, id uuid.UUID, performedBy string) (*Turno, error) {
	guard := func(t *Turno) error {
		if t.ScheduledAt().After(s.now()) {
			return ErrNotYetElapsed
		}
		return nil
	}
	return s.transition(ctx, id, OpMarcarAusente, "", performedBy, guard, "")
}

// transition runs one state-machine operation atomically: read, table check,
// conditional update, audit, all in one transaction.
func (s *Service) transition(ctx context.Context, id uuid.UUID, op Operation, reason, performedBy string, guard func(*Turno) error, event string) (*Turno, error) {
	performedBy = ensureActor(performedBy)

	var updated *Turno
	err := s.repo.InTx(ctx, func(r Repository) error {
		before, err := r.Find(ctx, id)
		if err != nil {
			return err
		}

		next, err := Transition(before.Estado, op)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(before); err != nil {
				return err
			}
		}

		after, err := r.ConditionalUpdateState(ctx, id, before.Estado, next)
		if err != nil {
			if errors.Is(err, ErrStaleState) {
				return s.resolveStale(ctx, r, id, op)
			}
			return err
		}
		if op == OpMarcarAusente || op == OpCompletar {
			attended := op == OpCompletar
			if err := r.SetAttendance(ctx, id, attended); err != nil {
				return err
			}
			after.Attendance = &attended
		}

		if err := r.InsertAudit(ctx, &audit.Record{
			EntityType:  audit.EntityTurno,
			EntityID:    id,
			Action:      operationAction(op),
			PerformedBy: performedBy,
			StateBefore: before.Snapshot(),
			StateAfter:  after.Snapshot(),
			Reason:      reason,
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrAuditWrite, err)
		}

		updated = after
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(op), "error")
		return nil, err
	}

	s.metrics.ObserveTransition(string(op), "ok")
	if event != "" {
		s.dispatch(ctx, id, event)
	}
	return updated, nil
}

// resolveStale re-reads after a lost conditional update so a racing cancel
// still surfaces the idempotency guard instead of a generic error.
func (s *Service) resolveStale(ctx context.Context, r Repository, id uuid.UUID, op Operation) error {
	current, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	if op == OpCancelar && current.Estado == EstadoCancelado {
		return ErrAlreadyCancelled
	}
	return &InvalidTransitionError{From: current.Estado, Op: op}
}

// Reschedule marks the original turno REAGENDADO and creates a fresh
// PROGRAMADO turno on the new slot, carrying patient/physician/room/
// specialty/center forward. The two are linked through the audit trail, not
// a foreign key. A failed validation leaves the original untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStart, newEnd agenda.MinuteOfDay, reason, performedBy string) (*Turno, error) {
	performedBy = ensureActor(performedBy)
	if newEnd <= newStart {
		return nil, &ValidationError{Field: "end", Msg: "must be after start"}
	}

	original, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(original.Estado, OpReagendar); err != nil {
		return nil, err
	}
	if original.StaffID == nil {
		return nil, &ValidationError{Field: "staff_id", Msg: "turno is no longer linked to center staff"}
	}
	staffID := *original.StaffID

	var created *Turno
	slotKey := redisclient.SlotKey(agenda.DateOf(newDate), int(newStart), staffID)

	err = s.locker.WithSlotLock(ctx, slotKey, func(lockCtx context.Context) error {
		res, err := s.validator.Validate(lockCtx, s.now(), SlotRequest{
			Date:     newDate,
			Start:    newStart,
			RoomID:   original.RoomID,
			StaffID:  staffID,
			CenterID: original.CenterID,
		})
		if err != nil {
			return err
		}
		if !res.Accepted {
			if res.Reason == ReasonConflict {
				return &ConflictError{Reason: res.Reason, Conflicts: res.Conflicts}
			}
			return &ValidationError{Field: "slot", Msg: res.Reason}
		}

		return s.repo.InTx(lockCtx, func(r Repository) error {
			moved, err := r.ConditionalUpdateState(lockCtx, id, original.Estado, EstadoReagendado)
			if err != nil {
				if errors.Is(err, ErrStaleState) {
					return s.resolveStale(lockCtx, r, id, OpReagendar)
				}
				return err
			}

			replacement := &Turno{
				Date:         agenda.DateOf(newDate),
				Start:        newStart,
				End:          newEnd,
				Estado:       EstadoProgramado,
				PatientID:    original.PatientID,
				StaffID:      original.StaffID,
				PhysicianID:  original.PhysicianID,
				RoomID:       original.RoomID,
				SpecialtyID:  original.SpecialtyID,
				CenterID:     original.CenterID,
				Observations: original.Observations,
			}
			if err := r.Insert(lockCtx, replacement); err != nil {
				return err
			}

			if err := r.InsertAudit(lockCtx, &audit.Record{
				EntityType:  audit.EntityTurno,
				EntityID:    id,
				Action:      audit.ActionReagendar,
				PerformedBy: performedBy,
				StateBefore: original.Snapshot(),
				StateAfter:  moved.Snapshot(),
				Reason:      fmt.Sprintf("reagendado a turno %s: %s", replacement.ID, reason),
			}); err != nil {
				return fmt.Errorf("%w: %v", ErrAuditWrite, err)
			}
			if err := r.InsertAudit(lockCtx, &audit.Record{
				EntityType:  audit.EntityTurno,
				EntityID:    replacement.ID,
				Action:      audit.ActionCrear,
				PerformedBy: performedBy,
				StateAfter:  replacement.Snapshot(),
				Reason:      fmt.Sprintf("reagendado desde turno %s", id),
			}); err != nil {
				return fmt.Errorf("%w: %v", ErrAuditWrite, err)
			}

			created = replacement
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			conflicts, lookupErr := s.repo.FindActiveBySlot(ctx, newDate, newStart, staffID)
			if lookupErr != nil {
				s.logger.Error("load conflicting turnos", "error", lookupErr)
			}
			refs := make([]Ref, 0, len(conflicts))
			for i := range conflicts {
				refs = append(refs, conflicts[i].Ref())
			}
			s.metrics.ObserveTransition(string(OpReagendar), "conflict")
			return nil, &ConflictError{Reason: ReasonConflict, Conflicts: refs}
		}
		s.metrics.ObserveTransition(string(OpReagendar), "error")
		return nil, err
	}

	s.metrics.ObserveTransition(string(OpReagendar), "ok")
	s.dispatch(ctx, id, notify.EventTurnoReagendado)
	return created, nil
}

// Get retrieves a turno by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Turno, error) {
	return s.repo.Find(ctx, id)
}

// ListByDateRange lists turnos with [from, to) dates.
func (s *Service) ListByDateRange(ctx context.Context, from, to time.Time) ([]Turno, error) {
	return s.repo.ListByDateRange(ctx, from, to)
}

// AdminDelete physically removes a turno. Normal operation never does this
// (cancellation is a state, not a row removal); the audit record is written
// in the same transaction, before the delete.
func (s *Service) AdminDelete(ctx context.Context, id uuid.UUID, reason, performedBy string) error {
	performedBy = ensureActor(performedBy)

	return s.repo.InTx(ctx, func(r Repository) error {
		before, err := r.Find(ctx, id)
		if err != nil {
			return err
		}
		if err := r.InsertAudit(ctx, &audit.Record{
			EntityType:  audit.EntityTurno,
			EntityID:    id,
			Action:      audit.ActionEliminar,
			PerformedBy: performedBy,
			StateBefore: before.Snapshot(),
			Reason:      reason,
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrAuditWrite, err)
		}
		return r.Delete(ctx, id)
	})
}

func (s *Service) dispatch(ctx context.Context, id uuid.UUID, event string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, id, event); err != nil {
		// The single accepted log-and-continue path.
		s.logger.Warn("notification dispatch failed", "turno_id", id, "event", event, "error", err)
	}
}

func ensureActor(performedBy string) string {
	if performedBy == "" {
		return actor.UnknownActor
	}
	return performedBy
}
