package agenda

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrTemplateNotFound  = errors.New("schedule template not found")
	ErrExceptionNotFound = errors.New("exceptional day not found")
)

// DB is the slice of pgx that the stores use. *pgxpool.Pool, pgx.Tx and the
// pgxmock pool all satisfy it.
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

// Store is the template/exception surface the core consumes, plus the
// administrative writes used by center configuration flows. Every write
// records who performed it: the mutation and its audit record commit in one
// transaction.
type Store interface {
	TemplateSource
	ExceptionSource

	GetTemplate(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error)
	CreateTemplate(ctx context.Context, tpl *ScheduleTemplate, performedBy string) error
	UpsertException(ctx context.Context, ex *ExceptionalDay, performedBy string) error
	DeleteException(ctx context.Context, id uuid.UUID, performedBy string) error
}
