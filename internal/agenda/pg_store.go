package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinagenda/turnos/internal/actor"
	"github.com/clinagenda/turnos/internal/audit"
)

type PgStore struct {
	db   DB
	pool Pool // nil when already transaction-bound
}

func NewPgStore(pool Pool) *PgStore {
	return &PgStore{db: pool, pool: pool}
}

// inTx runs fn inside one transaction so a configuration write and its audit
// record commit or roll back together.
func (s *PgStore) inTx(ctx context.Context, fn func(*PgStore) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func scanTemplate(row pgx.Row) (*ScheduleTemplate, error) {
	var t ScheduleTemplate
	var weekday, start, end, slotMinutes int

	err := row.Scan(
		&t.ID,
		&t.StaffID,
		&t.PhysicianID,
		&t.SpecialtyID,
		&t.RoomID,
		&t.CenterID,
		&weekday,
		&start,
		&end,
		&slotMinutes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Weekday = time.Weekday(weekday)
	t.Start = MinuteOfDay(start)
	t.End = MinuteOfDay(end)
	t.SlotMinutes = slotMinutes
	return &t, nil
}

func scanException(row pgx.Row) (*ExceptionalDay, error) {
	var ex ExceptionalDay
	var start, end, duration *int

	err := row.Scan(
		&ex.ID,
		&ex.Date,
		&ex.Scope,
		&ex.CenterID,
		&ex.RoomID,
		&ex.TemplateID,
		&start,
		&end,
		&duration,
		&ex.Description,
		&ex.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	if start != nil {
		m := MinuteOfDay(*start)
		ex.Start = &m
	}
	if end != nil {
		m := MinuteOfDay(*end)
		ex.End = &m
	}
	ex.DurationMinutes = duration
	ex.Date = DateOf(ex.Date)
	return &ex, nil
}

const templateColumns = `id, staff_id, physician_id, specialty_id, room_id, center_id, weekday, hora_inicio, hora_fin, slot_minutes, created_at, updated_at`

// Interface methods

func (s *PgStore) GetTemplate(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM esquemas_turno
		WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (s *PgStore) ListTemplates(ctx context.Context, f Filters) ([]ScheduleTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM esquemas_turno
		WHERE 1=1`
	var args []any
	argIdx := 1

	if f.CenterID != nil {
		query += fmt.Sprintf(" AND center_id = $%d", argIdx)
		args = append(args, *f.CenterID)
		argIdx++
	}
	if f.SpecialtyID != nil {
		query += fmt.Sprintf(" AND specialty_id = $%d", argIdx)
		args = append(args, *f.SpecialtyID)
		argIdx++
	}
	if f.StaffID != nil {
		query += fmt.Sprintf(" AND staff_id = $%d", argIdx)
		args = append(args, *f.StaffID)
		argIdx++
	}
	query += " ORDER BY weekday, hora_inicio"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var result []ScheduleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *PgStore) CreateTemplate(ctx context.Context, tpl *ScheduleTemplate, performedBy string) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	if performedBy == "" {
		performedBy = actor.UnknownActor
	}

	return s.inTx(ctx, func(tx *PgStore) error {
		_, err := tx.db.Exec(ctx, `
			INSERT INTO esquemas_turno (id, staff_id, physician_id, specialty_id, room_id, center_id, weekday, hora_inicio, hora_fin, slot_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		`, tpl.ID, tpl.StaffID, tpl.PhysicianID, tpl.SpecialtyID, tpl.RoomID, tpl.CenterID,
			int(tpl.Weekday), int(tpl.Start), int(tpl.End), tpl.SlotMinutes)
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}

		return audit.Insert(ctx, tx.db, &audit.Record{
			EntityType:  audit.EntityConfiguracion,
			EntityID:    tpl.ID,
			Action:      audit.ActionCrear,
			PerformedBy: performedBy,
			StateAfter:  tpl.Snapshot(),
		})
	})
}

func (s *PgStore) ListExceptions(ctx context.Context, centerID uuid.UUID, from, to time.Time) ([]ExceptionalDay, error) {
	query := `
		SELECT id, fecha, scope, center_id, room_id, template_id, hora_inicio, hora_fin, duration_minutes, descripcion, created_at
		FROM configuraciones_excepcionales
		WHERE fecha >= $1 AND fecha < $2`
	args := []any{from, to}

	if centerID != uuid.Nil {
		query += " AND center_id = $3"
		args = append(args, centerID)
	}
	query += " ORDER BY fecha"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	var result []ExceptionalDay
	for rows.Next() {
		ex, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ex)
	}
	return result, rows.Err()
}

// UpsertException writes one exceptional day. A later write for the same
// (date, template) replaces the earlier one rather than stacking.
func (s *PgStore) UpsertException(ctx context.Context, ex *ExceptionalDay, performedBy string) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	if performedBy == "" {
		performedBy = actor.UnknownActor
	}

	var start, end *int
	if ex.Start != nil {
		v := int(*ex.Start)
		start = &v
	}
	if ex.End != nil {
		v := int(*ex.End)
		end = &v
	}

	return s.inTx(ctx, func(tx *PgStore) error {
		var before *ExceptionalDay
		if ex.TemplateID != nil {
			prior, err := scanException(tx.db.QueryRow(ctx, `
				SELECT id, fecha, scope, center_id, room_id, template_id, hora_inicio, hora_fin, duration_minutes, descripcion, created_at
				FROM configuraciones_excepcionales
				WHERE fecha = $1 AND template_id = $2
			`, DateOf(ex.Date), *ex.TemplateID))
			switch {
			case err == nil:
				before = prior
				ex.ID = prior.ID
			case !errors.Is(err, ErrExceptionNotFound):
				return fmt.Errorf("load prior exception: %w", err)
			}
		}

		_, err := tx.db.Exec(ctx, `
			INSERT INTO configuraciones_excepcionales (id, fecha, scope, center_id, room_id, template_id, hora_inicio, hora_fin, duration_minutes, descripcion, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (fecha, template_id) WHERE template_id IS NOT NULL
			DO UPDATE SET scope = EXCLUDED.scope,
			              room_id = EXCLUDED.room_id,
			              hora_inicio = EXCLUDED.hora_inicio,
			              hora_fin = EXCLUDED.hora_fin,
			              duration_minutes = EXCLUDED.duration_minutes,
			              descripcion = EXCLUDED.descripcion
		`, ex.ID, DateOf(ex.Date), ex.Scope, ex.CenterID, ex.RoomID, ex.TemplateID,
			start, end, ex.DurationMinutes, ex.Description)
		if err != nil {
			return fmt.Errorf("upsert exception: %w", err)
		}

		return audit.Insert(ctx, tx.db, &audit.Record{
			EntityType:  audit.EntityConfiguracion,
			EntityID:    ex.ID,
			Action:      audit.ActionCrear,
			PerformedBy: performedBy,
			StateBefore: before.Snapshot(),
			StateAfter:  ex.Snapshot(),
		})
	})
}

func (s *PgStore) DeleteException(ctx context.Context, id uuid.UUID, performedBy string) error {
	if performedBy == "" {
		performedBy = actor.UnknownActor
	}

	return s.inTx(ctx, func(tx *PgStore) error {
		ex, err := scanException(tx.db.QueryRow(ctx, `
			SELECT id, fecha, scope, center_id, room_id, template_id, hora_inicio, hora_fin, duration_minutes, descripcion, created_at
			FROM configuraciones_excepcionales
			WHERE id = $1
		`, id))
		if err != nil {
			return err
		}

		if _, err := tx.db.Exec(ctx, `
			DELETE FROM configuraciones_excepcionales
			WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("delete exception: %w", err)
		}

		return audit.Insert(ctx, tx.db, &audit.Record{
			EntityType:  audit.EntityConfiguracion,
			EntityID:    id,
			Action:      audit.ActionEliminar,
			PerformedBy: performedBy,
			StateBefore: ex.Snapshot(),
		})
	})
}
