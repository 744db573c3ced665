package agenda

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MinuteOfDay is a time of day expressed as minutes since midnight.
// Slot arithmetic stays in whole minutes; the wire format is "HH:MM".
type MinuteOfDay int

func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return MinuteOfDay(t.Hour()*60 + t.Minute()), nil
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

func (m MinuteOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MinuteOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseMinuteOfDay(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// ScheduleTemplate is a recurring weekly availability rule for a physician
// working a room at a center. Physician/specialty are denormalized onto the
// rule so generated slots can carry them into the booking without extra reads.
type ScheduleTemplate struct {
	ID          uuid.UUID
	StaffID     uuid.UUID // physician-staff link at the center, may later be severed
	PhysicianID uuid.UUID
	SpecialtyID uuid.UUID
	RoomID      uuid.UUID
	CenterID    uuid.UUID
	Weekday     time.Weekday
	Start       MinuteOfDay
	End         MinuteOfDay
	SlotMinutes int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type templateSnapshot struct {
	ID          uuid.UUID   `json:"id"`
	StaffID     uuid.UUID   `json:"staff_id"`
	PhysicianID uuid.UUID   `json:"physician_id"`
	SpecialtyID uuid.UUID   `json:"specialty_id"`
	RoomID      uuid.UUID   `json:"room_id"`
	CenterID    uuid.UUID   `json:"center_id"`
	Weekday     int         `json:"weekday"`
	Start       MinuteOfDay `json:"start"`
	End         MinuteOfDay `json:"end"`
	SlotMinutes int         `json:"slot_minutes"`
}

// Snapshot serializes the rule for audit records.
func (t *ScheduleTemplate) Snapshot() json.RawMessage {
	if t == nil {
		return nil
	}
	data, err := json.Marshal(templateSnapshot{
		ID:          t.ID,
		StaffID:     t.StaffID,
		PhysicianID: t.PhysicianID,
		SpecialtyID: t.SpecialtyID,
		RoomID:      t.RoomID,
		CenterID:    t.CenterID,
		Weekday:     int(t.Weekday),
		Start:       t.Start,
		End:         t.End,
		SlotMinutes: t.SlotMinutes,
	})
	if err != nil {
		return nil
	}
	return data
}

type ExceptionScope string

const (
	ScopeHoliday          ExceptionScope = "HOLIDAY"
	ScopeMaintenance      ExceptionScope = "MAINTENANCE"
	ScopeSpecialAttention ExceptionScope = "SPECIAL_ATTENTION"
)

// ExceptionalDay is a one-off override for a specific date. HOLIDAY closes
// the whole center, MAINTENANCE blocks a room window, SPECIAL_ATTENTION
// widens or replaces one template's window. At most one authoritative
// exception exists per (date, template) scope; writes replace, not stack.
type ExceptionalDay struct {
	ID              uuid.UUID
	Date            time.Time // calendar date, UTC midnight
	Scope           ExceptionScope
	CenterID        uuid.UUID
	RoomID          *uuid.UUID
	TemplateID      *uuid.UUID
	Start           *MinuteOfDay
	End             *MinuteOfDay
	DurationMinutes *int // SPECIAL_ATTENTION: with Start it closes the window; alone it extends the base end
	Description     string
	CreatedAt       time.Time
}

type exceptionSnapshot struct {
	ID              uuid.UUID      `json:"id"`
	Date            string         `json:"date"`
	Scope           ExceptionScope `json:"scope"`
	CenterID        uuid.UUID      `json:"center_id"`
	RoomID          *uuid.UUID     `json:"room_id,omitempty"`
	TemplateID      *uuid.UUID     `json:"template_id,omitempty"`
	Start           *MinuteOfDay   `json:"start,omitempty"`
	End             *MinuteOfDay   `json:"end,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	Description     string         `json:"description,omitempty"`
}

// Snapshot serializes the exceptional day for audit records.
func (ex *ExceptionalDay) Snapshot() json.RawMessage {
	if ex == nil {
		return nil
	}
	data, err := json.Marshal(exceptionSnapshot{
		ID:              ex.ID,
		Date:            DateOf(ex.Date).Format("2006-01-02"),
		Scope:           ex.Scope,
		CenterID:        ex.CenterID,
		RoomID:          ex.RoomID,
		TemplateID:      ex.TemplateID,
		Start:           ex.Start,
		End:             ex.End,
		DurationMinutes: ex.DurationMinutes,
		Description:     ex.Description,
	})
	if err != nil {
		return nil
	}
	return data
}

// Window is an effective availability span for one template on one date.
type Window struct {
	Start     MinuteOfDay
	End       MinuteOfDay
	Available bool
}

// Slot is one bookable candidate emitted by the generator.
type Slot struct {
	TemplateID  uuid.UUID   `json:"template_id"`
	StaffID     uuid.UUID   `json:"staff_id"`
	PhysicianID uuid.UUID   `json:"physician_id"`
	SpecialtyID uuid.UUID   `json:"specialty_id"`
	RoomID      uuid.UUID   `json:"room_id"`
	CenterID    uuid.UUID   `json:"center_id"`
	Date        time.Time   `json:"date"`
	Start       MinuteOfDay `json:"start"`
	End         MinuteOfDay `json:"end"`
	Occupied    bool        `json:"occupied"`
}

// Filters narrows which templates feed slot generation. ExcludeStaffID
// implements self-exclusion: a physician browsing availability never sees
// their own slots.
type Filters struct {
	CenterID       *uuid.UUID
	SpecialtyID    *uuid.UUID
	StaffID        *uuid.UUID
	ExcludeStaffID *uuid.UUID
}
