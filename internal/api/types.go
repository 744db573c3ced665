package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/turno"
)

type BookTurnoRequest struct {
	Date         string `json:"date"`  // "2006-01-02"
	Start        string `json:"start"` // "15:04"
	End          string `json:"end"`
	PatientID    string `json:"patient_id"`
	StaffID      string `json:"staff_id"`
	PhysicianID  string `json:"physician_id"`
	RoomID       string `json:"room_id"`
	SpecialtyID  string `json:"specialty_id"`
	CenterID     string `json:"center_id"`
	Observations string `json:"observations,omitempty"`
}

type CancelTurnoRequest struct {
	Reason string `json:"reason"`
}

type RescheduleTurnoRequest struct {
	Date   string `json:"date"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason,omitempty"`
}

type CreateExceptionRequest struct {
	Date            string  `json:"date"`
	Scope           string  `json:"scope"`
	CenterID        string  `json:"center_id"`
	RoomID          *string `json:"room_id,omitempty"`
	TemplateID      *string `json:"template_id,omitempty"`
	Start           *string `json:"start,omitempty"`
	End             *string `json:"end,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Description     string  `json:"description,omitempty"`
}

type CreateTemplateRequest struct {
	StaffID     string `json:"staff_id"`
	PhysicianID string `json:"physician_id"`
	SpecialtyID string `json:"specialty_id"`
	RoomID      string `json:"room_id"`
	CenterID    string `json:"center_id"`
	Weekday     int    `json:"weekday"` // 0=Sunday .. 6=Saturday
	Start       string `json:"start"`
	End         string `json:"end"`
	SlotMinutes int    `json:"slot_minutes"`
}

type TurnoResponse struct {
	ID           uuid.UUID  `json:"id"`
	Date         string     `json:"date"`
	Start        string     `json:"start"`
	End          string     `json:"end"`
	Estado       string     `json:"estado"`
	PatientID    uuid.UUID  `json:"patient_id"`
	StaffID      *uuid.UUID `json:"staff_id,omitempty"`
	PhysicianID  uuid.UUID  `json:"physician_id"`
	RoomID       uuid.UUID  `json:"room_id"`
	SpecialtyID  uuid.UUID  `json:"specialty_id"`
	CenterID     uuid.UUID  `json:"center_id"`
	Observations string     `json:"observations,omitempty"`
	Attendance   *bool      `json:"attendance,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toTurnoResponse(t *turno.Turno) TurnoResponse {
	return TurnoResponse{
		ID:           t.ID,
		Date:         t.Date.Format("2006-01-02"),
		Start:        t.Start.String(),
		End:          t.End.String(),
		Estado:       string(t.Estado),
		PatientID:    t.PatientID,
		StaffID:      t.StaffID,
		PhysicianID:  t.PhysicianID,
		RoomID:       t.RoomID,
		SpecialtyID:  t.SpecialtyID,
		CenterID:     t.CenterID,
		Observations: t.Observations,
		Attendance:   t.Attendance,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

type SlotResponse struct {
	TemplateID  uuid.UUID `json:"template_id"`
	StaffID     uuid.UUID `json:"staff_id"`
	PhysicianID uuid.UUID `json:"physician_id"`
	SpecialtyID uuid.UUID `json:"specialty_id"`
	RoomID      uuid.UUID `json:"room_id"`
	CenterID    uuid.UUID `json:"center_id"`
	Date        string    `json:"date"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Occupied    bool      `json:"occupied"`
}

func toSlotResponse(s agenda.Slot) SlotResponse {
	return SlotResponse{
		TemplateID:  s.TemplateID,
		StaffID:     s.StaffID,
		PhysicianID: s.PhysicianID,
		SpecialtyID: s.SpecialtyID,
		RoomID:      s.RoomID,
		CenterID:    s.CenterID,
		Date:        s.Date.Format("2006-01-02"),
		Start:       s.Start.String(),
		End:         s.End.String(),
		Occupied:    s.Occupied,
	}
}

type ValidationResponse struct {
	Accepted  bool        `json:"accepted"`
	Reason    string      `json:"reason,omitempty"`
	Conflicts []turno.Ref `json:"conflicts,omitempty"`
}

type ErrorResponse struct {
	Error     string      `json:"error"`
	Details   string      `json:"details,omitempty"`
	Conflicts []turno.Ref `json:"conflicts,omitempty"`
}
