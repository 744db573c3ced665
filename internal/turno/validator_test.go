package turno

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinagenda/turnos/internal/agenda"
)

func minutes(h, m int) agenda.MinuteOfDay { return agenda.MinuteOfDay(h*60 + m) }

func validSlotRequest() SlotRequest {
	return SlotRequest{
		Date:     time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Start:    minutes(9, 0),
		RoomID:   uuid.New(),
		StaffID:  uuid.New(),
		CenterID: uuid.New(),
	}
}

func TestValidateAccepts(t *testing.T) {
	h := newHarness()
	v := NewValidator(h.exceptions, h.repo)

	res, err := v.Validate(context.Background(), fixedNow, validSlotRequest())
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestValidateRejectsPastDate(t *testing.T) {
	h := newHarness()
	v := NewValidator(h.exceptions, h.repo)

	req := validSlotRequest()
	req.Date = fixedNow.AddDate(0, 0, -1)

	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonPastDate, res.Reason)
}

func TestValidateRejectsEarlierTimeToday(t *testing.T) {
	h := newHarness()
	v := NewValidator(h.exceptions, h.repo)

	req := validSlotRequest()
	req.Date = agenda.DateOf(fixedNow)
	req.Start = minutes(7, 0) // fixedNow is 08:00

	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonPastDate, res.Reason)
}

func TestValidateRejectsHoliday(t *testing.T) {
	h := newHarness()
	req := validSlotRequest()
	h.exceptions.exceptions = []agenda.ExceptionalDay{{
		Date:     agenda.DateOf(req.Date),
		Scope:    agenda.ScopeHoliday,
		CenterID: req.CenterID,
	}}
	v := NewValidator(h.exceptions, h.repo)

	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonHoliday, res.Reason)
	assert.Empty(t, res.Conflicts)
}

func TestValidateRejectsMaintenanceWindow(t *testing.T) {
	h := newHarness()
	req := validSlotRequest()
	from := minutes(8, 30)
	to := minutes(10, 0)
	h.exceptions.exceptions = []agenda.ExceptionalDay{{
		Date:   agenda.DateOf(req.Date),
		Scope:  agenda.ScopeMaintenance,
		RoomID: &req.RoomID,
		Start:  &from,
		End:    &to,
	}}
	v := NewValidator(h.exceptions, h.repo)

	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonMaintenance, res.Reason)
}

func TestValidateMaintenanceOtherRoomAccepted(t *testing.T) {
	h := newHarness()
	req := validSlotRequest()
	other := uuid.New()
	from := minutes(8, 30)
	to := minutes(10, 0)
	h.exceptions.exceptions = []agenda.ExceptionalDay{{
		Date:   agenda.DateOf(req.Date),
		Scope:  agenda.ScopeMaintenance,
		RoomID: &other,
		Start:  &from,
		End:    &to,
	}}
	v := NewValidator(h.exceptions, h.repo)

	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestValidateRejectsActiveConflictWithRefs(t *testing.T) {
	h := newHarness()
	req := validSlotRequest()

	existing, err := h.svc.Book(context.Background(), BookingRequest{
		Date:        req.Date,
		Start:       req.Start,
		End:         req.Start + 30,
		PatientID:   uuid.New(),
		StaffID:     req.StaffID,
		PhysicianID: uuid.New(),
		RoomID:      req.RoomID,
		SpecialtyID: uuid.New(),
		CenterID:    req.CenterID,
	}, "dr-lopez")
	require.NoError(t, err)

	v := NewValidator(h.exceptions, h.repo)
	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonConflict, res.Reason)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, existing.ID, res.Conflicts[0].ID)
}

func TestValidateCancelledTurnoDoesNotConflict(t *testing.T) {
	h := newHarness()
	req := validSlotRequest()

	booked, err := h.svc.Book(context.Background(), BookingRequest{
		Date:        req.Date,
		Start:       req.Start,
		End:         req.Start + 30,
		PatientID:   uuid.New(),
		StaffID:     req.StaffID,
		PhysicianID: uuid.New(),
		RoomID:      req.RoomID,
		SpecialtyID: uuid.New(),
		CenterID:    req.CenterID,
	}, "dr-lopez")
	require.NoError(t, err)
	_, err = h.svc.Cancel(context.Background(), booked.ID, "paciente canceló", "dr-lopez")
	require.NoError(t, err)

	v := NewValidator(h.exceptions, h.repo)
	res, err := v.Validate(context.Background(), fixedNow, req)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}
