package turno

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/agenda"
)

type Estado string

const (
	EstadoProgramado Estado = "PROGRAMADO"
	EstadoConfirmado Estado = "CONFIRMADO"
	EstadoCancelado  Estado = "CANCELADO"
	EstadoCompleto   Estado = "COMPLETO"
	EstadoAusente    Estado = "AUSENTE"
	EstadoReagendado Estado = "REAGENDADO"
)

// Turno is a booked appointment. StaffID is the weak link to the physician's
// membership at the center and may be cleared if the staff association is
// removed; PhysicianID, SpecialtyID and CenterID are captured at creation and
// never recomputed, so history survives later re-association.
type Turno struct {
	ID           uuid.UUID
	Date         time.Time // calendar date, UTC midnight
	Start        agenda.MinuteOfDay
	End          agenda.MinuteOfDay
	Estado       Estado
	PatientID    uuid.UUID
	StaffID      *uuid.UUID
	PhysicianID  uuid.UUID
	RoomID       uuid.UUID
	SpecialtyID  uuid.UUID
	CenterID     uuid.UUID
	Observations string
	Attendance   *bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScheduledAt is the instant the appointment begins.
func (t *Turno) ScheduledAt() time.Time {
	return t.Date.Add(time.Duration(t.Start) * time.Minute)
}

// Ref is the minimal identifying information exposed on conflicts, enough
// for a caller to drive a confirmation/override flow.
type Ref struct {
	ID        uuid.UUID          `json:"id"`
	Date      time.Time          `json:"date"`
	Start     agenda.MinuteOfDay `json:"start"`
	Estado    Estado             `json:"estado"`
	PatientID uuid.UUID          `json:"patient_id"`
}

func (t *Turno) Ref() Ref {
	return Ref{
		ID:        t.ID,
		Date:      t.Date,
		Start:     t.Start,
		Estado:    t.Estado,
		PatientID: t.PatientID,
	}
}

type snapshot struct {
	ID           uuid.UUID          `json:"id"`
	Date         string             `json:"date"`
	Start        agenda.MinuteOfDay `json:"start"`
	End          agenda.MinuteOfDay `json:"end"`
	Estado       Estado             `json:"estado"`
	PatientID    uuid.UUID          `json:"patient_id"`
	StaffID      *uuid.UUID         `json:"staff_id,omitempty"`
	PhysicianID  uuid.UUID          `json:"physician_id"`
	RoomID       uuid.UUID          `json:"room_id"`
	SpecialtyID  uuid.UUID          `json:"specialty_id"`
	CenterID     uuid.UUID          `json:"center_id"`
	Observations string             `json:"observations,omitempty"`
	Attendance   *bool              `json:"attendance,omitempty"`
}

// Snapshot serializes the full appointment state for audit records.
func (t *Turno) Snapshot() json.RawMessage {
	if t == nil {
		return nil
	}
	data, err := json.Marshal(snapshot{
		ID:           t.ID,
		Date:         t.Date.Format("2006-01-02"),
		Start:        t.Start,
		End:          t.End,
		Estado:       t.Estado,
		PatientID:    t.PatientID,
		StaffID:      t.StaffID,
		PhysicianID:  t.PhysicianID,
		RoomID:       t.RoomID,
		SpecialtyID:  t.SpecialtyID,
		CenterID:     t.CenterID,
		Observations: t.Observations,
		Attendance:   t.Attendance,
	})
	if err != nil {
		return nil
	}
	return data
}
