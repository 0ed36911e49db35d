package codemap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "external_code_mapping"

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const mappingColumns = `key, external_system, category, external_code, internal_code, description`

func scanMapping(row pgx.Row) (*Mapping, error) {
	var m Mapping
	if err := row.Scan(&m.Key, &m.ExternalSystem, &m.Category, &m.ExternalCode, &m.InternalCode, &m.Description); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) List(ctx context.Context, category Category, system string) ([]*Mapping, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if category != "" {
		where += fmt.Sprintf(` AND category = $%d`, idx)
		args = append(args, string(category))
		idx++
	}
	if system != "" {
		where += fmt.Sprintf(` AND external_system = $%d`, idx)
		args = append(args, system)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+mappingColumns+` FROM external_code_mapping`+where+
		` ORDER BY external_system, category, external_code`, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	mappings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Mapping, error) {
		return scanMapping(row)
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return mappings, nil
}

func (r *repoPG) Resolve(ctx context.Context, system string, category Category, externalCode string) (*Mapping, error) {
	m, err := scanMapping(r.conn(ctx).QueryRow(ctx, `SELECT `+mappingColumns+` FROM external_code_mapping
		WHERE external_system = $1 AND category = $2 AND external_code = $3`,
		system, string(category), externalCode))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return m, nil
}

func upsert(ctx context.Context, q db.DB, m *Mapping) (bool, error) {
	if m.Key == uuid.Nil {
		m.Key = uuid.New()
	}
	var inserted bool
	err := q.QueryRow(ctx, `
		INSERT INTO external_code_mapping (key, external_system, category, external_code, internal_code, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT external_code_mapping_code_key
		DO UPDATE SET internal_code = EXCLUDED.internal_code, description = EXCLUDED.description
		RETURNING key, (xmax = 0)`,
		m.Key, m.ExternalSystem, string(m.Category), m.ExternalCode, m.InternalCode, m.Description,
	).Scan(&m.Key, &inserted)
	if err != nil {
		return false, sqlerr.ClassifyFor(table, err)
	}
	return inserted, nil
}

func (r *repoPG) Upsert(ctx context.Context, m *Mapping) (bool, error) {
	return upsert(ctx, r.conn(ctx), m)
}

// UpsertAll applies every mapping in one transaction. The first failure
// rolls back the whole import.
func (r *repoPG) UpsertAll(ctx context.Context, mappings []Mapping) (ImportResult, error) {
	var res ImportResult
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		for i := range mappings {
			inserted, err := upsert(ctx, q, &mappings[i])
			if err != nil {
				return fmt.Errorf("mapping %d: %w", i, err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM external_code_mapping WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}
