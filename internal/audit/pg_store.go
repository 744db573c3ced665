package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of pgx the store needs; *pgxpool.Pool, pgx.Tx and the
// pgxmock pool all satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store serves the reporting/read side of the audit trail. Writes go through
// Insert on the mutating repository's transaction so a mutation and its audit
// record commit together.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

const recordColumns = `id, entity_type, entity_id, action, performed_by, performed_at, state_before, state_after, reason`

// Insert writes one record, defaulting ID and PerformedAt. It takes the DB
// handle explicitly so repositories can write the record on the same
// transaction as the mutation it describes.
func Insert(ctx context.Context, db DB, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.PerformedAt.IsZero() {
		rec.PerformedAt = time.Now().UTC()
	}

	_, err := db.Exec(ctx, `
		INSERT INTO registros_auditoria (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.EntityType, rec.EntityID, rec.Action, rec.PerformedBy,
		rec.PerformedAt, rec.StateBefore, rec.StateAfter, rec.Reason)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Query retrieves audit records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM registros_auditoria
		WHERE 1=1`
	var args []any
	argIdx := 1

	if f.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, f.EntityType)
		argIdx++
	}
	if f.EntityID != uuid.Nil {
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, f.EntityID)
		argIdx++
	}
	if f.PerformedBy != "" {
		query += fmt.Sprintf(" AND performed_by = $%d", argIdx)
		args = append(args, f.PerformedBy)
		argIdx++
	}
	if f.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, f.Action)
		argIdx++
	}
	if !f.From.IsZero() {
		query += fmt.Sprintf(" AND performed_at >= $%d", argIdx)
		args = append(args, f.From)
		argIdx++
	}
	if !f.To.IsZero() {
		query += fmt.Sprintf(" AND performed_at < $%d", argIdx)
		args = append(args, f.To)
		argIdx++
	}

	query += " ORDER BY performed_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		err := rows.Scan(
			&r.ID, &r.EntityType, &r.EntityID, &r.Action,
			&r.PerformedBy, &r.PerformedAt, &r.StateBefore, &r.StateAfter, &r.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByAction aggregates record counts per action in a date range.
func (s *Store) CountByAction(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT action, count(*)
		FROM registros_auditoria
		WHERE performed_at >= $1 AND performed_at < $2
		GROUP BY action
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count audit records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

// PurgeBefore is the retention-cleanup job: the single allowed delete path.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM registros_auditoria
		WHERE performed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return tag.RowsAffected(), nil
}
