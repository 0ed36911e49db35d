package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationStatus represents the status of a migration (applied or pending).
type MigrationStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the embedded SQL migrations to the dispensing schema.
type Migrator struct {
	pool   *pgxpool.Pool
	schema string
	fsys   fs.FS
}

// NewMigrator creates a Migrator bound to the given pool and schema.
func NewMigrator(pool *pgxpool.Pool, schema string) (*Migrator, error) {
	if err := ValidateSchemaName(schema); err != nil {
		return nil, err
	}
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return &Migrator{pool: pool, schema: schema, fsys: sub}, nil
}

// EnsureSchema creates the target schema if it does not exist yet.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+m.schema); err != nil {
		return fmt.Errorf("create schema %s: %w", m.schema, err)
	}
	return nil
}

func (m *Migrator) provider(ctx context.Context) (*goose.Provider, func(), error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	sqlDB := stdlib.OpenDBFromPool(m.pool)
	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, m.fsys)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("create migration provider: %w", err)
	}
	return p, func() { _ = sqlDB.Close() }, nil
}

// Up applies all pending migrations. Returns the count of applied migrations.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	return m.UpTo(ctx, 0)
}

// UpTo applies pending migrations up to and including targetVersion. A zero
// target applies everything.
func (m *Migrator) UpTo(ctx context.Context, targetVersion int64) (int, error) {
	p, closeDB, err := m.provider(ctx)
	if err != nil {
		return 0, err
	}
	defer closeDB()

	var results []*goose.MigrationResult
	if targetVersion > 0 {
		results, err = p.UpTo(ctx, targetVersion)
	} else {
		results, err = p.Up(ctx)
	}
	if err != nil {
		return len(results), fmt.Errorf("apply migrations to %s: %w", m.schema, err)
	}
	return len(results), nil
}

// DownTo rolls back applied migrations until the database is at targetVersion.
func (m *Migrator) DownTo(ctx context.Context, targetVersion int64) (int, error) {
	p, closeDB, err := m.provider(ctx)
	if err != nil {
		return 0, err
	}
	defer closeDB()

	results, err := p.DownTo(ctx, targetVersion)
	if err != nil {
		return len(results), fmt.Errorf("roll back migrations in %s: %w", m.schema, err)
	}
	return len(results), nil
}

// Status returns the status of all known migrations (both applied and pending).
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	p, closeDB, err := m.provider(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	raw, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("query migration status in %s: %w", m.schema, err)
	}

	statuses := make([]MigrationStatus, 0, len(raw))
	for _, s := range raw {
		st := MigrationStatus{
			Version: s.Source.Version,
			Name:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		}
		if st.Applied {
			at := s.AppliedAt
			st.AppliedAt = &at
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
