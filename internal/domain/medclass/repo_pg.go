package medclass

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const (
	table       = "med_class_group"
	memberTable = "med_class_group_member"
)

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

func (r *repoPG) collect(ctx context.Context, sql string, args ...any) ([]*Group, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Group, error) {
		var g Group
		err := row.Scan(&g.Key, &g.Code, &g.Description)
		return &g, err
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadMembers(ctx, q, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repoPG) List(ctx context.Context) ([]*Group, error) {
	return r.collect(ctx, `SELECT key, code, description FROM med_class_group ORDER BY code`)
}

func (r *repoPG) getOne(ctx context.Context, cond string, arg any) (*Group, error) {
	groups, err := r.collect(ctx, `SELECT key, code, description FROM med_class_group WHERE `+cond, arg)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, sqlerr.NotFoundFor(table)
	}
	return groups[0], nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*Group, error) {
	return r.getOne(ctx, `key = $1`, key)
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Group, error) {
	return r.getOne(ctx, `code = $1`, code)
}

func loadMembers(ctx context.Context, q db.DB, groups []*Group) error {
	if len(groups) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Group, len(groups))
	keys := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		byKey[g.Key] = g
		keys = append(keys, g.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT group_key, class_code FROM med_class_group_member
		WHERE group_key = ANY($1) ORDER BY class_code`, keys)
	if err != nil {
		return sqlerr.ClassifyFor(memberTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key uuid.UUID
		var code string
		if err := rows.Scan(&key, &code); err != nil {
			return sqlerr.ClassifyFor(memberTable, err)
		}
		if g := byKey[key]; g != nil {
			g.ClassCodes = append(g.ClassCodes, code)
		}
	}
	return sqlerr.ClassifyFor(memberTable, rows.Err())
}

func insertMembers(ctx context.Context, q db.DB, groupKey uuid.UUID, classCodes []string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO med_class_group_member (group_key, class_code)
		SELECT $1, unnest($2::text[])`, groupKey, classCodes)
	return sqlerr.ClassifyFor(memberTable, err)
}

func (r *repoPG) Create(ctx context.Context, g *Group) error {
	if g.Key == uuid.Nil {
		g.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx,
			`INSERT INTO med_class_group (key, code, description) VALUES ($1, $2, $3)`,
			g.Key, g.Code, g.Description); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		if len(g.ClassCodes) > 0 {
			return insertMembers(ctx, q, g.Key, g.ClassCodes)
		}
		return nil
	})
}

func (r *repoPG) Update(ctx context.Context, g *Group) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE med_class_group SET code = $2, description = $3 WHERE key = $1`,
		g.Key, g.Code, g.Description)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM med_class_group WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func (r *repoPG) UpdateClassCodes(ctx context.Context, groupKey uuid.UUID, classCodes []string) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked uuid.UUID
		if err := q.QueryRow(ctx, `SELECT key FROM med_class_group WHERE key = $1 FOR UPDATE`, groupKey).Scan(&locked); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		rows, err := q.Query(ctx, `SELECT class_code FROM med_class_group_member WHERE group_key = $1`, groupKey)
		if err != nil {
			return sqlerr.ClassifyFor(memberTable, err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return sqlerr.ClassifyFor(memberTable, err)
		}

		diff := reconcile.Diff(current, classCodes)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM med_class_group_member WHERE group_key = $1 AND class_code = ANY($2)`,
				groupKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor(memberTable, err)
			}
		}
		if len(diff.Added) > 0 {
			if err := insertMembers(ctx, q, groupKey, diff.Added); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
