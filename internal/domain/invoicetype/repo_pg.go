package invoicetype

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "invoice_type"

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

func (r *repoPG) List(ctx context.Context, activeOnly bool) ([]*InvoiceType, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT key, code, description, active, sort_order FROM invoice_type
		WHERE ($1::bool = FALSE OR active)
		ORDER BY sort_order, code`, activeOnly)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	types, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[InvoiceType])
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return types, nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*InvoiceType, error) {
	var it InvoiceType
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT key, code, description, active, sort_order FROM invoice_type WHERE key = $1`, key).
		Scan(&it.Key, &it.Code, &it.Description, &it.Active, &it.SortOrder)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return &it, nil
}

func (r *repoPG) Create(ctx context.Context, it *InvoiceType) error {
	if it.Key == uuid.Nil {
		it.Key = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_type (key, code, description, active, sort_order)
		VALUES ($1, $2, $3, $4, $5)`,
		it.Key, it.Code, it.Description, it.Active, it.SortOrder)
	return sqlerr.ClassifyFor(table, err)
}

func (r *repoPG) Update(ctx context.Context, it *InvoiceType) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_type SET code = $2, description = $3, active = $4, sort_order = $5
		WHERE key = $1`,
		it.Key, it.Code, it.Description, it.Active, it.SortOrder)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_type WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}
