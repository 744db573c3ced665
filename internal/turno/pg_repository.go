package turno

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
)

// DB is the slice of pgx the repository uses; satisfied by *pgxpool.Pool,
// pgx.Tx and the pgxmock pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool adds transaction support on top of DB.
type Pool interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db   DB
	pool Pool // nil when bound to a transaction
}

func NewPgRepository(pool Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

// Helpers

const turnoColumns = `id, fecha, hora_inicio, hora_fin, estado, patient_id, staff_id, physician_id, room_id, specialty_id, center_id, observaciones, asistencia, created_at, updated_at`

func scanTurno(row pgx.Row) (*Turno, error) {
	var t Turno
	var start, end int

	err := row.Scan(
		&t.ID,
		&t.Date,
		&start,
		&end,
		&t.Estado,
		&t.PatientID,
		&t.StaffID,
		&t.PhysicianID,
		&t.RoomID,
		&t.SpecialtyID,
		&t.CenterID,
		&t.Observations,
		&t.Attendance,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	t.Start = agenda.MinuteOfDay(start)
	t.End = agenda.MinuteOfDay(end)
	t.Date = agenda.DateOf(t.Date)
	return &t, nil
}

func (r *PgRepository) scanTurnos(rows pgx.Rows) ([]Turno, error) {
	defer rows.Close()

	var result []Turno
	for rows.Next() {
		t, err := scanTurno(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

// Interface methods

func (r *PgRepository) Find(ctx context.Context, id uuid.UUID) (*Turno, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE id = $1
	`, id)
	return scanTurno(row)
}

func (r *PgRepository) FindActiveBySlot(ctx context.Context, date time.Time, start agenda.MinuteOfDay, staffID uuid.UUID) ([]Turno, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE fecha = $1 AND hora_inicio = $2 AND staff_id = $3
		  AND estado <> 'CANCELADO'
	`, agenda.DateOf(date), int(start), staffID)
	if err != nil {
		return nil, err
	}
	return r.scanTurnos(rows)
}

func (r *PgRepository) Insert(ctx context.Context, t *Turno) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO turnos (id, fecha, hora_inicio, hora_fin, estado, patient_id, staff_id, physician_id, room_id, specialty_id, center_id, observaciones, asistencia, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING `+turnoColumns+`
	`, t.ID, agenda.DateOf(t.Date), int(t.Start), int(t.End), t.Estado,
		t.PatientID, t.StaffID, t.PhysicianID, t.RoomID, t.SpecialtyID, t.CenterID,
		t.Observations, t.Attendance)

	inserted, err := scanTurno(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The partial unique index is the true source of truth for the
			// one-active-turno-per-slot invariant.
			return ErrSlotTaken
		}
		return fmt.Errorf("insert turno: %w", err)
	}

	*t = *inserted
	return nil
}

func (r *PgRepository) ConditionalUpdateState(ctx context.Context, id uuid.UUID, expected, next Estado) (*Turno, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE turnos
		SET estado = $2,
		    updated_at = now()
		WHERE id = $1
		  AND estado = $3
		RETURNING `+turnoColumns+`
	`, id, next, expected)

	t, err := scanTurno(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrStaleState
		}
		return nil, err
	}
	return t, nil
}

func (r *PgRepository) SetAttendance(ctx context.Context, id uuid.UUID, attended bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE turnos
		SET asistencia = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, attended)
	if err != nil {
		return fmt.Errorf("set attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]Turno, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE fecha >= $1 AND fecha < $2
		ORDER BY fecha, hora_inicio
	`, agenda.DateOf(from), agenda.DateOf(to))
	if err != nil {
		return nil, err
	}
	return r.scanTurnos(rows)
}

func (r *PgRepository) ListPendingInWindow(ctx context.Context, from, to time.Time) ([]Turno, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE estado = 'PROGRAMADO'
		  AND fecha + make_interval(mins => hora_inicio::int) > $1
		  AND fecha + make_interval(mins => hora_inicio::int) < $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	return r.scanTurnos(rows)
}

func (r *PgRepository) InsertAudit(ctx context.Context, rec *audit.Record) error {
	return audit.Insert(ctx, r.db, rec)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM turnos
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete turno: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		// Already transaction-bound; nested use joins the same tx.
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadOccupancy satisfies agenda.OccupancySource: it indexes every active
// turno in range by physician-staff and by room so the slot generator can
// tag candidates as occupied.
func (r *PgRepository) LoadOccupancy(ctx context.Context, from, to time.Time) (*agenda.Occupancy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT fecha, hora_inicio, staff_id, room_id
		FROM turnos
		WHERE fecha >= $1 AND fecha < $2
		  AND estado <> 'CANCELADO'
	`, agenda.DateOf(from), agenda.DateOf(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occ := agenda.NewOccupancy()
	for rows.Next() {
		var date time.Time
		var start int
		var staffID *uuid.UUID
		var roomID uuid.UUID
		if err := rows.Scan(&date, &start, &staffID, &roomID); err != nil {
			return nil, err
		}
		date = agenda.DateOf(date)
		if staffID != nil {
			occ.AddStaff(date, agenda.MinuteOfDay(start), *staffID)
		}
		occ.AddRoom(date, agenda.MinuteOfDay(start), roomID)
	}
	return occ, rows.Err()
}
