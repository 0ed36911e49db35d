package dispensingsystem

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "dispensing_system"

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const systemColumns = `key, facility_key, name, server_address, sync_enabled,
	outdate_tracking_enabled, auto_resolve_discrepancies, default_printer`

func scanSystem(row pgx.Row) (*System, error) {
	var s System
	err := row.Scan(&s.Key, &s.FacilityKey, &s.Name, &s.ServerAddress, &s.SyncEnabled,
		&s.OutdateTrackingEnabled, &s.AutoResolveDiscrepancies, &s.DefaultPrinter)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) ListByFacility(ctx context.Context, facilityKey uuid.UUID) ([]*System, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+systemColumns+` FROM dispensing_system
		WHERE facility_key = $1 ORDER BY name`, facilityKey)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	systems, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*System, error) {
		return scanSystem(row)
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadContacts(ctx, q, systems); err != nil {
		return nil, err
	}
	return systems, nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*System, error) {
	q := r.conn(ctx)
	s, err := scanSystem(q.QueryRow(ctx, `SELECT `+systemColumns+` FROM dispensing_system WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadContacts(ctx, q, []*System{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func loadContacts(ctx context.Context, q db.DB, systems []*System) error {
	if len(systems) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*System, len(systems))
	keys := make([]uuid.UUID, 0, len(systems))
	for _, s := range systems {
		byKey[s.Key] = s
		keys = append(keys, s.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT key, system_key, full_name, phone, email, role_text
		FROM dispensing_system_contact WHERE system_key = ANY($1)
		ORDER BY full_name`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("dispensing_system_contact", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Key, &c.SystemKey, &c.FullName, &c.Phone, &c.Email, &c.RoleText); err != nil {
			return sqlerr.ClassifyFor("dispensing_system_contact", err)
		}
		if s := byKey[c.SystemKey]; s != nil {
			s.Contacts = append(s.Contacts, c)
		}
	}
	return sqlerr.ClassifyFor("dispensing_system_contact", rows.Err())
}

func insertContact(ctx context.Context, q db.DB, c *Contact) error {
	if c.Key == uuid.Nil {
		c.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO dispensing_system_contact (key, system_key, full_name, phone, email, role_text)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.Key, c.SystemKey, c.FullName, c.Phone, c.Email, c.RoleText)
	return sqlerr.ClassifyFor("dispensing_system_contact", err)
}

func (r *repoPG) Create(ctx context.Context, s *System) error {
	if s.Key == uuid.Nil {
		s.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO dispensing_system (key, facility_key, name, server_address, sync_enabled,
				outdate_tracking_enabled, auto_resolve_discrepancies, default_printer)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.Key, s.FacilityKey, s.Name, s.ServerAddress, s.SyncEnabled,
			s.OutdateTrackingEnabled, s.AutoResolveDiscrepancies, s.DefaultPrinter)
		if err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		for i := range s.Contacts {
			s.Contacts[i].SystemKey = s.Key
			if err := insertContact(ctx, q, &s.Contacts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repoPG) Update(ctx context.Context, s *System) error {
	var facilityKey uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE dispensing_system SET name = $2, server_address = $3, sync_enabled = $4,
			outdate_tracking_enabled = $5, auto_resolve_discrepancies = $6, default_printer = $7,
			updated_utc = NOW()
		WHERE key = $1
		RETURNING facility_key`,
		s.Key, s.Name, s.ServerAddress, s.SyncEnabled,
		s.OutdateTrackingEnabled, s.AutoResolveDiscrepancies, s.DefaultPrinter).Scan(&facilityKey)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	s.FacilityKey = facilityKey
	return nil
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM dispensing_system WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func (r *repoPG) UpdateContacts(ctx context.Context, systemKey uuid.UUID, contacts []Contact) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked uuid.UUID
		if err := q.QueryRow(ctx, `SELECT key FROM dispensing_system WHERE key = $1 FOR UPDATE`,
			systemKey).Scan(&locked); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		rows, err := q.Query(ctx, `SELECT key FROM dispensing_system_contact WHERE system_key = $1`, systemKey)
		if err != nil {
			return sqlerr.ClassifyFor("dispensing_system_contact", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("dispensing_system_contact", err)
		}

		diff := reconcile.Items(current, contacts, func(c Contact) uuid.UUID { return c.Key })
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM dispensing_system_contact WHERE system_key = $1 AND key = ANY($2)`,
				systemKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("dispensing_system_contact", err)
			}
		}
		for _, c := range diff.Updated {
			if _, err := q.Exec(ctx, `
				UPDATE dispensing_system_contact SET full_name = $3, phone = $4, email = $5, role_text = $6
				WHERE system_key = $1 AND key = $2`,
				systemKey, c.Key, c.FullName, c.Phone, c.Email, c.RoleText); err != nil {
				return sqlerr.ClassifyFor("dispensing_system_contact", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].SystemKey = systemKey
			if err := insertContact(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
