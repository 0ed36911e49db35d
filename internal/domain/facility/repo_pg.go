package facility

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

const table = "facility"

var snapshot = db.Snapshot{Table: "facility_snapshot", KeyColumn: "facility_key"}

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const facilityColumns = `s.facility_key, s.code, s.name, s.active, s.time_zone,
	s.address_line1, s.address_line2, s.city, s.state, s.postal_code,
	s.version, s.start_utc, s.end_utc`

func scanFacility(row pgx.Row) (*Facility, error) {
	var f Facility
	err := row.Scan(
		&f.Key, &f.Code, &f.Name, &f.Active, &f.TimeZone,
		&f.AddressLine1, &f.AddressLine2, &f.City, &f.State, &f.PostalCode,
		&f.Version, &f.StartUTC, &f.EndUTC,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Facility, int, error) {
	where := ` WHERE s.` + db.CurrentFilter
	var args []interface{}
	idx := 1

	if filter.Name != "" {
		where += fmt.Sprintf(` AND (s.name ILIKE $%d OR s.code ILIKE $%d)`, idx, idx)
		args = append(args, db.ContainsPattern(filter.Name))
		idx++
	}
	if filter.Active != nil {
		where += fmt.Sprintf(` AND s.active = $%d`, idx)
		args = append(args, *filter.Active)
		idx++
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM facility_snapshot s`+where, args...).Scan(&total); err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}

	query := `SELECT ` + facilityColumns + ` FROM facility_snapshot s` + where +
		fmt.Sprintf(` ORDER BY s.name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}
	defer rows.Close()

	var facilities []*Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, 0, sqlerr.ClassifyFor(table, err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}
	rows.Close()

	if err := loadChildren(ctx, q, facilities); err != nil {
		return nil, 0, err
	}
	return facilities, total, nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*Facility, error) {
	return r.getOne(ctx, `s.facility_key = $1`, key)
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Facility, error) {
	return r.getOne(ctx, `lower(s.code) = lower($1)`, code)
}

func (r *repoPG) getOne(ctx context.Context, cond string, arg interface{}) (*Facility, error) {
	q := r.conn(ctx)
	f, err := scanFacility(q.QueryRow(ctx,
		`SELECT `+facilityColumns+` FROM facility_snapshot s WHERE `+cond+` AND s.`+db.CurrentFilter, arg))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadChildren(ctx, q, []*Facility{f}); err != nil {
		return nil, err
	}
	return f, nil
}

// loadChildren fetches contacts, notice types and sheet configs for all
// facilities with one key-list query per child table and attaches them.
func loadChildren(ctx context.Context, q db.DB, facilities []*Facility) error {
	if len(facilities) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Facility, len(facilities))
	keys := make([]uuid.UUID, 0, len(facilities))
	for _, f := range facilities {
		byKey[f.Key] = f
		keys = append(keys, f.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT key, facility_key, full_name, title, phone, email
		FROM facility_contact WHERE facility_key = ANY($1)
		ORDER BY full_name, key`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("facility_contact", err)
	}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Key, &c.FacilityKey, &c.FullName, &c.Title, &c.Phone, &c.Email); err != nil {
			rows.Close()
			return sqlerr.ClassifyFor("facility_contact", err)
		}
		if f := byKey[c.FacilityKey]; f != nil {
			f.Contacts = append(f.Contacts, c)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sqlerr.ClassifyFor("facility_contact", err)
	}

	rows, err = q.Query(ctx, `
		SELECT facility_key, notice_type
		FROM facility_notice_type WHERE facility_key = ANY($1)
		ORDER BY notice_type`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("facility_notice_type", err)
	}
	for rows.Next() {
		var fk uuid.UUID
		var nt NoticeType
		if err := rows.Scan(&fk, &nt); err != nil {
			rows.Close()
			return sqlerr.ClassifyFor("facility_notice_type", err)
		}
		if f := byKey[fk]; f != nil {
			f.NoticeTypes = append(f.NoticeTypes, nt)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sqlerr.ClassifyFor("facility_notice_type", err)
	}

	rows, err = q.Query(ctx, `
		SELECT key, facility_key, sheet_type, copies, printer_name
		FROM facility_sheet_config WHERE facility_key = ANY($1)
		ORDER BY sheet_type`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("facility_sheet_config", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc SheetConfig
		if err := rows.Scan(&sc.Key, &sc.FacilityKey, &sc.SheetType, &sc.Copies, &sc.PrinterName); err != nil {
			return sqlerr.ClassifyFor("facility_sheet_config", err)
		}
		if f := byKey[sc.FacilityKey]; f != nil {
			f.SheetConfigs = append(f.SheetConfigs, sc)
		}
	}
	return sqlerr.ClassifyFor("facility_sheet_config", rows.Err())
}

func insertVersion(ctx context.Context, q db.DB, f *Facility) error {
	err := q.QueryRow(ctx, `
		INSERT INTO facility_snapshot (
			facility_key, code, name, active, time_zone,
			address_line1, address_line2, city, state, postal_code, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING start_utc`,
		f.Key, f.Code, f.Name, f.Active, f.TimeZone,
		f.AddressLine1, f.AddressLine2, f.City, f.State, f.PostalCode, f.Version,
	).Scan(&f.StartUTC)
	return sqlerr.ClassifyFor(snapshot.Table, err)
}

func (r *repoPG) Create(ctx context.Context, f *Facility) error {
	if f.Key == uuid.Nil {
		f.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `INSERT INTO facility (key) VALUES ($1)`, f.Key); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		f.Version = 1
		if err := insertVersion(ctx, q, f); err != nil {
			return err
		}

		for i := range f.Contacts {
			f.Contacts[i].FacilityKey = f.Key
			if err := insertContact(ctx, q, &f.Contacts[i]); err != nil {
				return err
			}
		}
		if len(f.NoticeTypes) > 0 {
			if err := insertNoticeTypes(ctx, q, f.Key, f.NoticeTypes); err != nil {
				return err
			}
		}
		for i := range f.SheetConfigs {
			f.SheetConfigs[i].FacilityKey = f.Key
			if err := insertSheetConfig(ctx, q, &f.SheetConfigs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update closes the current version and writes its successor. f.Version must
// hold the version the caller read; on success it holds the new version.
func (r *repoPG) Update(ctx context.Context, f *Facility) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		closed, err := snapshot.Close(ctx, q, f.Key, f.Version)
		if err != nil {
			return err
		}
		f.Version = closed + 1
		return insertVersion(ctx, q, f)
	})
}

// Delete closes the current version without a successor. History is kept.
func (r *repoPG) Delete(ctx context.Context, key uuid.UUID, expectedVersion int) error {
	_, err := snapshot.Close(ctx, r.conn(ctx), key, expectedVersion)
	return err
}

func (r *repoPG) History(ctx context.Context, key uuid.UUID) ([]*Facility, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+facilityColumns+` FROM facility_snapshot s WHERE s.facility_key = $1 ORDER BY s.version DESC`, key)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	defer rows.Close()

	var versions []*Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, sqlerr.ClassifyFor(table, err)
		}
		versions = append(versions, f)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if len(versions) == 0 {
		return nil, sqlerr.NotFoundFor(table)
	}
	return versions, nil
}

// lockCurrent row-locks the current version so concurrent child reconciles
// for the same facility serialize.
func lockCurrent(ctx context.Context, q db.DB, key uuid.UUID) error {
	var version int
	err := q.QueryRow(ctx,
		`SELECT version FROM facility_snapshot WHERE facility_key = $1 AND `+db.CurrentFilter+` FOR UPDATE`, key,
	).Scan(&version)
	return sqlerr.ClassifyFor(table, err)
}

func selectKeys(ctx context.Context, q db.DB, sql string, key uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, sql, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []uuid.UUID
	for rows.Next() {
		var k uuid.UUID
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func insertContact(ctx context.Context, q db.DB, c *Contact) error {
	if c.Key == uuid.Nil {
		c.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO facility_contact (key, facility_key, full_name, title, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.Key, c.FacilityKey, c.FullName, c.Title, c.Phone, c.Email)
	return sqlerr.ClassifyFor("facility_contact", err)
}

func insertNoticeTypes(ctx context.Context, q db.DB, key uuid.UUID, types []NoticeType) error {
	_, err := q.Exec(ctx, `
		INSERT INTO facility_notice_type (facility_key, notice_type)
		SELECT $1, unnest($2::text[])`,
		key, codes.Strings(types))
	return sqlerr.ClassifyFor("facility_notice_type", err)
}

func insertSheetConfig(ctx context.Context, q db.DB, sc *SheetConfig) error {
	if sc.Key == uuid.Nil {
		sc.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO facility_sheet_config (key, facility_key, sheet_type, copies, printer_name)
		VALUES ($1, $2, $3, $4, $5)`,
		sc.Key, sc.FacilityKey, string(sc.SheetType), sc.Copies, sc.PrinterName)
	return sqlerr.ClassifyFor("facility_sheet_config", err)
}

func (r *repoPG) UpdateContacts(ctx context.Context, key uuid.UUID, contacts []Contact) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if err := lockCurrent(ctx, q, key); err != nil {
			return err
		}
		current, err := selectKeys(ctx, q, `SELECT key FROM facility_contact WHERE facility_key = $1`, key)
		if err != nil {
			return sqlerr.ClassifyFor("facility_contact", err)
		}

		diff := reconcile.Items(current, contacts, func(c Contact) uuid.UUID { return c.Key })
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM facility_contact WHERE facility_key = $1 AND key = ANY($2)`, key, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("facility_contact", err)
			}
		}
		for i := range diff.Updated {
			c := diff.Updated[i]
			if _, err := q.Exec(ctx, `
				UPDATE facility_contact SET full_name = $3, title = $4, phone = $5, email = $6
				WHERE facility_key = $1 AND key = $2`,
				key, c.Key, c.FullName, c.Title, c.Phone, c.Email); err != nil {
				return sqlerr.ClassifyFor("facility_contact", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].FacilityKey = key
			if err := insertContact(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

func (r *repoPG) UpdateNoticeTypes(ctx context.Context, key uuid.UUID, types []NoticeType) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if err := lockCurrent(ctx, q, key); err != nil {
			return err
		}

		rows, err := q.Query(ctx, `SELECT notice_type FROM facility_notice_type WHERE facility_key = $1`, key)
		if err != nil {
			return sqlerr.ClassifyFor("facility_notice_type", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[NoticeType])
		if err != nil {
			return sqlerr.ClassifyFor("facility_notice_type", err)
		}

		diff := reconcile.Diff(current, types)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM facility_notice_type WHERE facility_key = $1 AND notice_type = ANY($2)`,
				key, codes.Strings(diff.Removed)); err != nil {
				return sqlerr.ClassifyFor("facility_notice_type", err)
			}
		}
		if len(diff.Added) > 0 {
			if err := insertNoticeTypes(ctx, q, key, diff.Added); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

func (r *repoPG) UpdateSheetConfigs(ctx context.Context, key uuid.UUID, configs []SheetConfig) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if err := lockCurrent(ctx, q, key); err != nil {
			return err
		}
		current, err := selectKeys(ctx, q, `SELECT key FROM facility_sheet_config WHERE facility_key = $1`, key)
		if err != nil {
			return sqlerr.ClassifyFor("facility_sheet_config", err)
		}

		diff := reconcile.Items(current, configs, func(sc SheetConfig) uuid.UUID { return sc.Key })
		// removals first so a re-added sheet type does not trip the unique constraint
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM facility_sheet_config WHERE facility_key = $1 AND key = ANY($2)`, key, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("facility_sheet_config", err)
			}
		}
		// kept configs may swap sheet types; uniqueness is checked at commit
		if len(diff.Updated) > 1 {
			if _, err := q.Exec(ctx, `SET CONSTRAINTS facility_sheet_config_facility_type_key DEFERRED`); err != nil {
				return sqlerr.ClassifyFor("facility_sheet_config", err)
			}
		}
		for _, sc := range diff.Updated {
			if _, err := q.Exec(ctx, `
				UPDATE facility_sheet_config SET sheet_type = $3, copies = $4, printer_name = $5
				WHERE facility_key = $1 AND key = $2`,
				key, sc.Key, string(sc.SheetType), sc.Copies, sc.PrinterName); err != nil {
				return sqlerr.ClassifyFor("facility_sheet_config", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].FacilityKey = key
			if err := insertSheetConfig(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
