package license

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/codes"
	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "controlled_substance_license"

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const licenseColumns = `key, facility_key, license_number, name, schedules, expiration_date, active`

func scanLicense(row pgx.Row) (*License, error) {
	var l License
	var raw []string
	if err := row.Scan(&l.Key, &l.FacilityKey, &l.LicenseNumber, &l.Name, &raw, &l.ExpirationDate, &l.Active); err != nil {
		return nil, err
	}
	var err error
	if l.Schedules, err = schedules.ParseAll(raw); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repoPG) collect(ctx context.Context, sql string, args ...any) ([]*License, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	licenses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*License, error) {
		return scanLicense(row)
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return licenses, nil
}

func (r *repoPG) ListByFacility(ctx context.Context, facilityKey uuid.UUID) ([]*License, error) {
	return r.collect(ctx, `SELECT `+licenseColumns+` FROM controlled_substance_license
		WHERE facility_key = $1 ORDER BY license_number`, facilityKey)
}

func (r *repoPG) ListExpiring(ctx context.Context, before time.Time) ([]*License, error) {
	return r.collect(ctx, `SELECT `+licenseColumns+` FROM controlled_substance_license
		WHERE active AND expiration_date < $1
		ORDER BY expiration_date, license_number`, before)
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*License, error) {
	l, err := scanLicense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM controlled_substance_license WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return l, nil
}

func (r *repoPG) Create(ctx context.Context, l *License) error {
	if l.Key == uuid.Nil {
		l.Key = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO controlled_substance_license (key, facility_key, license_number, name,
			schedules, expiration_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.Key, l.FacilityKey, l.LicenseNumber, l.Name, codes.Strings(l.Schedules), l.ExpirationDate, l.Active)
	return sqlerr.ClassifyFor(table, err)
}

// Update rewrites everything but the facility.
func (r *repoPG) Update(ctx context.Context, l *License) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE controlled_substance_license SET license_number = $2, name = $3, schedules = $4,
			expiration_date = $5, active = $6
		WHERE key = $1
		RETURNING facility_key`,
		l.Key, l.LicenseNumber, l.Name, codes.Strings(l.Schedules), l.ExpirationDate, l.Active).
		Scan(&l.FacilityKey)
	return sqlerr.ClassifyFor(table, err)
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM controlled_substance_license WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}
