package uom

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/codes"
	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "unit_of_measure"

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const uomColumns = `u.key, u.code, u.description, u.active`

func (r *repoPG) collect(ctx context.Context, q db.DB, sql string, args ...any) ([]*UnitOfMeasure, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	units, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*UnitOfMeasure, error) {
		var u UnitOfMeasure
		err := row.Scan(&u.Key, &u.Code, &u.Description, &u.Active)
		return &u, err
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadRoles(ctx, q, units); err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter) ([]*UnitOfMeasure, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.Role != nil {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM unit_of_measure_role r WHERE r.uom_key = u.key AND r.role = $%d)`, idx)
		args = append(args, string(*filter.Role))
		idx++
	}
	if filter.Active != nil {
		where += fmt.Sprintf(` AND u.active = $%d`, idx)
		args = append(args, *filter.Active)
	}
	return r.collect(ctx, r.conn(ctx), `SELECT `+uomColumns+` FROM unit_of_measure u`+where+` ORDER BY u.code`, args...)
}

func (r *repoPG) getOne(ctx context.Context, cond string, arg any) (*UnitOfMeasure, error) {
	units, err := r.collect(ctx, r.conn(ctx), `SELECT `+uomColumns+` FROM unit_of_measure u WHERE `+cond, arg)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, sqlerr.NotFoundFor(table)
	}
	return units[0], nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*UnitOfMeasure, error) {
	return r.getOne(ctx, `u.key = $1`, key)
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*UnitOfMeasure, error) {
	return r.getOne(ctx, `u.code = $1`, code)
}

func loadRoles(ctx context.Context, q db.DB, units []*UnitOfMeasure) error {
	if len(units) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*UnitOfMeasure, len(units))
	keys := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		byKey[u.Key] = u
		keys = append(keys, u.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT uom_key, role FROM unit_of_measure_role
		WHERE uom_key = ANY($1) ORDER BY role`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("unit_of_measure_role", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key uuid.UUID
		var role Role
		if err := rows.Scan(&key, &role); err != nil {
			return sqlerr.ClassifyFor("unit_of_measure_role", err)
		}
		if u := byKey[key]; u != nil {
			u.Roles = append(u.Roles, role)
		}
	}
	return sqlerr.ClassifyFor("unit_of_measure_role", rows.Err())
}

func insertRoles(ctx context.Context, q db.DB, key uuid.UUID, rs []Role) error {
	_, err := q.Exec(ctx, `
		INSERT INTO unit_of_measure_role (uom_key, role)
		SELECT $1, unnest($2::text[])`, key, codes.Strings(rs))
	return sqlerr.ClassifyFor("unit_of_measure_role", err)
}

func (r *repoPG) Create(ctx context.Context, u *UnitOfMeasure) error {
	if u.Key == uuid.Nil {
		u.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx,
			`INSERT INTO unit_of_measure (key, code, description, active) VALUES ($1, $2, $3, $4)`,
			u.Key, u.Code, u.Description, u.Active); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		if len(u.Roles) > 0 {
			return insertRoles(ctx, q, u.Key, u.Roles)
		}
		return nil
	})
}

func (r *repoPG) Update(ctx context.Context, u *UnitOfMeasure) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE unit_of_measure SET code = $2, description = $3, active = $4 WHERE key = $1`,
		u.Key, u.Code, u.Description, u.Active)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM unit_of_measure WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func (r *repoPG) UpdateRoles(ctx context.Context, key uuid.UUID, desired []Role) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked uuid.UUID
		if err := q.QueryRow(ctx, `SELECT key FROM unit_of_measure WHERE key = $1 FOR UPDATE`, key).Scan(&locked); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		rows, err := q.Query(ctx, `SELECT role FROM unit_of_measure_role WHERE uom_key = $1`, key)
		if err != nil {
			return sqlerr.ClassifyFor("unit_of_measure_role", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[Role])
		if err != nil {
			return sqlerr.ClassifyFor("unit_of_measure_role", err)
		}

		diff := reconcile.Diff(current, desired)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM unit_of_measure_role WHERE uom_key = $1 AND role = ANY($2)`,
				key, codes.Strings(diff.Removed)); err != nil {
				return sqlerr.ClassifyFor("unit_of_measure_role", err)
			}
		}
		if len(diff.Added) > 0 {
			if err := insertRoles(ctx, q, key, diff.Added); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
