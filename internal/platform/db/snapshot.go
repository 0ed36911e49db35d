package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

// Snapshot describes a temporal table where each row is one version of an
// entity. The current version is the row whose end_utc is NULL.
type Snapshot struct {
	Table     string
	KeyColumn string
}

// CurrentFilter is the predicate selecting current versions.
const CurrentFilter = "end_utc IS NULL"

// Close ends the current version of key. When expectedVersion is non-zero the
// current version must match it, otherwise sqlerr.ErrConcurrency is returned.
// It returns the version that was closed. Callers run it inside a transaction
// so a failed successor insert reopens the row on rollback.
func (s Snapshot) Close(ctx context.Context, q DB, key uuid.UUID, expectedVersion int) (int, error) {
	var closed int
	err := q.QueryRow(ctx, fmt.Sprintf(
		`UPDATE %s SET end_utc = NOW()
		WHERE %s = $1 AND %s AND ($2::int = 0 OR version = $2::int)
		RETURNING version`, s.Table, s.KeyColumn, CurrentFilter),
		key, expectedVersion,
	).Scan(&closed)
	if err == nil {
		return closed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, sqlerr.ClassifyFor(s.Table, err)
	}
	if expectedVersion == 0 {
		return 0, sqlerr.NotFoundFor(s.Table)
	}

	exists, err := s.Exists(ctx, q, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, sqlerr.ConcurrencyFor(s.Table)
	}
	return 0, sqlerr.NotFoundFor(s.Table)
}

// Exists reports whether key has a current version.
func (s Snapshot) Exists(ctx context.Context, q DB, key uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s)`,
		s.Table, s.KeyColumn, CurrentFilter), key,
	).Scan(&exists)
	if err != nil {
		return false, sqlerr.ClassifyFor(s.Table, err)
	}
	return exists, nil
}
