package turno

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
)

// bookAt books a PROGRAMADO turno whose scheduled time is hours from fixedNow.
func bookAt(t *testing.T, h *harness, hours int) *Turno {
	t.Helper()

	at := fixedNow.Add(time.Duration(hours) * time.Hour)
	req := validBooking()
	req.Date = agenda.DateOf(at)
	req.Start = agenda.MinuteOfDay(at.Hour()*60 + at.Minute())
	req.End = req.Start + 30
	req.StaffID = uuid.New()

	created, err := h.svc.Book(context.Background(), req, "recepcion-1")
	require.NoError(t, err)
	return created
}

func TestSweepCancelsInsideGraceWindow(t *testing.T) {
	h := newHarness()

	near := bookAt(t, h, 40) // inside 48h window
	far := bookAt(t, h, 60)  // outside

	count, err := h.svc.RunAutoCancellationSweep(context.Background(), fixedNow, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	cancelled, err := h.svc.Get(context.Background(), near.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoCancelado, cancelled.Estado)

	untouched, err := h.svc.Get(context.Background(), far.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoProgramado, untouched.Estado)

	records := h.repo.auditsFor(near.ID, audit.ActionCancelar)
	require.Len(t, records, 1)
	assert.Equal(t, "SYSTEM", records[0].PerformedBy)
	assert.Equal(t, AutoCancelReason, records[0].Reason)
}

func TestSweepSkipsConfirmed(t *testing.T) {
	h := newHarness()

	confirmed := bookAt(t, h, 40)
	_, err := h.svc.Confirm(context.Background(), confirmed.ID, "paciente-9")
	require.NoError(t, err)

	count, err := h.svc.RunAutoCancellationSweep(context.Background(), fixedNow, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	current, err := h.svc.Get(context.Background(), confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoConfirmado, current.Estado)
}

func TestSweepRerunIsIdempotent(t *testing.T) {
	h := newHarness()
	near := bookAt(t, h, 40)

	count, err := h.svc.RunAutoCancellationSweep(context.Background(), fixedNow, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = h.svc.RunAutoCancellationSweep(context.Background(), fixedNow, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// No second audit record for the same turno.
	records := h.repo.auditsFor(near.ID, audit.ActionCancelar)
	assert.Len(t, records, 1)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	h := newHarness()

	a := bookAt(t, h, 30)
	b := bookAt(t, h, 40)

	// Every cancel fails at the audit write: the sweep logs and moves on
	// instead of aborting the batch, and no state change leaks through.
	h.repo.failAudit = true
	count, err := h.svc.RunAutoCancellationSweep(context.Background(), fixedNow, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	h.repo.failAudit = false
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		current, err := h.svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, EstadoProgramado, current.Estado)
	}
}

func TestSweepRejectsNonPositiveWindow(t *testing.T) {
	h := newHarness()
	_, err := h.svc.RunAutoCancellationSweep(context.Background(), fixedNow, 0)
	assert.Error(t, err)
}
