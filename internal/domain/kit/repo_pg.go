package kit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "facility_kit"

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const kitColumns = `key, facility_key, name, description, active`

func scanKit(row pgx.Row) (*Kit, error) {
	var k Kit
	if err := row.Scan(&k.Key, &k.FacilityKey, &k.Name, &k.Description, &k.Active); err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *repoPG) ListByFacility(ctx context.Context, facilityKey uuid.UUID, activeOnly bool) ([]*Kit, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+kitColumns+` FROM facility_kit
		WHERE facility_key = $1 AND ($2::bool = FALSE OR active)
		ORDER BY name`, facilityKey, activeOnly)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	kits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Kit, error) {
		return scanKit(row)
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadItems(ctx, q, kits); err != nil {
		return nil, err
	}
	return kits, nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*Kit, error) {
	q := r.conn(ctx)
	k, err := scanKit(q.QueryRow(ctx, `SELECT `+kitColumns+` FROM facility_kit WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadItems(ctx, q, []*Kit{k}); err != nil {
		return nil, err
	}
	return k, nil
}

func loadItems(ctx context.Context, q db.DB, kits []*Kit) error {
	if len(kits) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Kit, len(kits))
	keys := make([]uuid.UUID, 0, len(kits))
	for _, k := range kits {
		byKey[k.Key] = k
		keys = append(keys, k.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT key, kit_key, item_id, description, quantity
		FROM facility_kit_item WHERE kit_key = ANY($1)
		ORDER BY item_id`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("facility_kit_item", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.KitKey, &it.ItemID, &it.Description, &it.Quantity); err != nil {
			return sqlerr.ClassifyFor("facility_kit_item", err)
		}
		if k := byKey[it.KitKey]; k != nil {
			k.Items = append(k.Items, it)
		}
	}
	return sqlerr.ClassifyFor("facility_kit_item", rows.Err())
}

func insertItem(ctx context.Context, q db.DB, it *Item) error {
	if it.Key == uuid.Nil {
		it.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO facility_kit_item (key, kit_key, item_id, description, quantity)
		VALUES ($1, $2, $3, $4, $5)`,
		it.Key, it.KitKey, it.ItemID, it.Description, it.Quantity)
	return sqlerr.ClassifyFor("facility_kit_item", err)
}

func (r *repoPG) Create(ctx context.Context, k *Kit) error {
	if k.Key == uuid.Nil {
		k.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `
			INSERT INTO facility_kit (key, facility_key, name, description, active)
			VALUES ($1, $2, $3, $4, $5)`,
			k.Key, k.FacilityKey, k.Name, k.Description, k.Active); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		for i := range k.Items {
			k.Items[i].KitKey = k.Key
			if err := insertItem(ctx, q, &k.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repoPG) Update(ctx context.Context, k *Kit) error {
	var facilityKey uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE facility_kit SET name = $2, description = $3, active = $4, updated_utc = NOW()
		WHERE key = $1
		RETURNING facility_key`,
		k.Key, k.Name, k.Description, k.Active).Scan(&facilityKey)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	k.FacilityKey = facilityKey
	return nil
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM facility_kit WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

// UpdateItems reconciles the kit's line items. Kept items get their
// description and quantity rewritten.
func (r *repoPG) UpdateItems(ctx context.Context, kitKey uuid.UUID, items []Item) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked uuid.UUID
		if err := q.QueryRow(ctx, `SELECT key FROM facility_kit WHERE key = $1 FOR UPDATE`, kitKey).Scan(&locked); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		rows, err := q.Query(ctx, `SELECT key FROM facility_kit_item WHERE kit_key = $1`, kitKey)
		if err != nil {
			return sqlerr.ClassifyFor("facility_kit_item", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("facility_kit_item", err)
		}

		diff := reconcile.Items(current, items, func(it Item) uuid.UUID { return it.Key })
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM facility_kit_item WHERE kit_key = $1 AND key = ANY($2)`,
				kitKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("facility_kit_item", err)
			}
		}
		for _, it := range diff.Updated {
			if _, err := q.Exec(ctx, `
				UPDATE facility_kit_item SET item_id = $3, description = $4, quantity = $5
				WHERE kit_key = $1 AND key = $2`,
				kitKey, it.Key, it.ItemID, it.Description, it.Quantity); err != nil {
				return sqlerr.ClassifyFor("facility_kit_item", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].KitKey = kitKey
			if err := insertItem(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
