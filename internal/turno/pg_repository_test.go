package turno

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
)

var turnoCols = []string{
	"id", "fecha", "hora_inicio", "hora_fin", "estado", "patient_id", "staff_id",
	"physician_id", "room_id", "specialty_id", "center_id", "observaciones",
	"asistencia", "created_at", "updated_at",
}

func turnoRow(mock pgxmock.PgxPoolIface, id uuid.UUID, estado Estado) *pgxmock.Rows {
	staffID := uuid.New()
	now := time.Now()
	return mock.NewRows(turnoCols).AddRow(
		id, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), 540, 570, estado,
		uuid.New(), &staffID, uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		"", (*bool)(nil), now, now,
	)
}

func auditRecordForTest(id uuid.UUID) *audit.Record {
	return &audit.Record{
		EntityType:  audit.EntityTurno,
		EntityID:    id,
		Action:      audit.ActionConfirmar,
		PerformedBy: "recepcion-1",
	}
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func TestPgFindScansTurno(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM turnos\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(turnoRow(mock, id, EstadoProgramado))

	got, err := repo.Find(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, EstadoProgramado, got.Estado)
	assert.Equal(t, agenda.MinuteOfDay(540), got.Start)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFindNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM turnos`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Find(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgInsertTranslatesUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO turnos`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "turnos_slot_activo_uniq"})

	staffID := uuid.New()
	err := repo.Insert(context.Background(), &Turno{
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Start:       540,
		End:         570,
		Estado:      EstadoProgramado,
		PatientID:   uuid.New(),
		StaffID:     &staffID,
		PhysicianID: uuid.New(),
		RoomID:      uuid.New(),
		SpecialtyID: uuid.New(),
		CenterID:    uuid.New(),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestPgConditionalUpdateDetectsStaleState(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE turnos`).
		WithArgs(id, EstadoConfirmado, EstadoProgramado).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ConditionalUpdateState(context.Background(), id, EstadoProgramado, EstadoConfirmado)
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestPgConditionalUpdateReturnsNewState(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE turnos`).
		WithArgs(id, EstadoConfirmado, EstadoProgramado).
		WillReturnRows(turnoRow(mock, id, EstadoConfirmado))

	got, err := repo.ConditionalUpdateState(context.Background(), id, EstadoProgramado, EstadoConfirmado)
	require.NoError(t, err)
	assert.Equal(t, EstadoConfirmado, got.Estado)
}

func TestPgSetAttendance(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE turnos`).
		WithArgs(id, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.SetAttendance(context.Background(), id, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgSetAttendanceNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE turnos`).
		WithArgs(id, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetAttendance(context.Background(), id, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgDeleteNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM turnos`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgInTxCommitsMutationAndAudit(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE turnos`).
		WithArgs(id, EstadoConfirmado, EstadoProgramado).
		WillReturnRows(turnoRow(mock, id, EstadoConfirmado))
	mock.ExpectExec(`INSERT INTO registros_auditoria`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(r Repository) error {
		if _, err := r.ConditionalUpdateState(context.Background(), id, EstadoProgramado, EstadoConfirmado); err != nil {
			return err
		}
		return r.InsertAudit(context.Background(), auditRecordForTest(id))
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInTxRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE turnos`).
		WithArgs(id, EstadoConfirmado, EstadoProgramado).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(r Repository) error {
		_, err := r.ConditionalUpdateState(context.Background(), id, EstadoProgramado, EstadoConfirmado)
		return err
	})
	assert.ErrorIs(t, err, ErrStaleState)
	require.NoError(t, mock.ExpectationsWereMet())
}
