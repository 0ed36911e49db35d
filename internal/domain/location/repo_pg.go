package location

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

var unitSnapshot = db.Snapshot{Table: "unit_snapshot", KeyColumn: "unit_key"}

// -- Unit Repository --

type unitRepoPG struct {
	pool db.DB
}

func NewUnitRepo(pool db.DB) UnitRepository {
	return &unitRepoPG{pool: pool}
}

func (r *unitRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const unitColumns = `s.unit_key, s.facility_key, s.name, s.description, s.active, s.version, s.start_utc, s.end_utc`

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	err := row.Scan(&u.Key, &u.FacilityKey, &u.Name, &u.Description, &u.Active, &u.Version, &u.StartUTC, &u.EndUTC)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *unitRepoPG) List(ctx context.Context, filter UnitFilter, limit, offset int) ([]*Unit, int, error) {
	where := ` WHERE s.` + db.CurrentFilter
	var args []interface{}
	idx := 1

	if filter.FacilityKey != uuid.Nil {
		where += fmt.Sprintf(` AND s.facility_key = $%d`, idx)
		args = append(args, filter.FacilityKey)
		idx++
	}
	if filter.Active != nil {
		where += fmt.Sprintf(` AND s.active = $%d`, idx)
		args = append(args, *filter.Active)
		idx++
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM unit_snapshot s`+where, args...).Scan(&total); err != nil {
		return nil, 0, sqlerr.ClassifyFor("unit", err)
	}

	query := `SELECT ` + unitColumns + ` FROM unit_snapshot s` + where +
		fmt.Sprintf(` ORDER BY s.name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, sqlerr.ClassifyFor("unit", err)
	}
	var units []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			rows.Close()
			return nil, 0, sqlerr.ClassifyFor("unit", err)
		}
		units = append(units, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, sqlerr.ClassifyFor("unit", err)
	}

	if err := loadUnitChildren(ctx, q, units); err != nil {
		return nil, 0, err
	}
	return units, total, nil
}

func (r *unitRepoPG) Get(ctx context.Context, key uuid.UUID) (*Unit, error) {
	q := r.conn(ctx)
	u, err := scanUnit(q.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM unit_snapshot s WHERE s.unit_key = $1 AND s.`+db.CurrentFilter, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor("unit", err)
	}
	if err := loadUnitChildren(ctx, q, []*Unit{u}); err != nil {
		return nil, err
	}
	return u, nil
}

// loadUnitChildren attaches rooms and area keys with one key-list query each.
func loadUnitChildren(ctx context.Context, q db.DB, units []*Unit) error {
	if len(units) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Unit, len(units))
	keys := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		byKey[u.Key] = u
		keys = append(keys, u.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT key, unit_key, name, bed_count
		FROM room WHERE unit_key = ANY($1)
		ORDER BY name`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("room", err)
	}
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.Key, &rm.UnitKey, &rm.Name, &rm.BedCount); err != nil {
			rows.Close()
			return sqlerr.ClassifyFor("room", err)
		}
		if u := byKey[rm.UnitKey]; u != nil {
			u.Rooms = append(u.Rooms, rm)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sqlerr.ClassifyFor("room", err)
	}

	rows, err = q.Query(ctx, `SELECT unit_key, area_key FROM unit_area WHERE unit_key = ANY($1)`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("unit_area", err)
	}
	defer rows.Close()
	for rows.Next() {
		var unitKey, areaKey uuid.UUID
		if err := rows.Scan(&unitKey, &areaKey); err != nil {
			return sqlerr.ClassifyFor("unit_area", err)
		}
		if u := byKey[unitKey]; u != nil {
			u.AreaKeys = append(u.AreaKeys, areaKey)
		}
	}
	return sqlerr.ClassifyFor("unit_area", rows.Err())
}

func insertUnitVersion(ctx context.Context, q db.DB, u *Unit) error {
	err := q.QueryRow(ctx, `
		INSERT INTO unit_snapshot (unit_key, facility_key, name, description, active, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING start_utc`,
		u.Key, u.FacilityKey, u.Name, u.Description, u.Active, u.Version,
	).Scan(&u.StartUTC)
	return sqlerr.ClassifyFor(unitSnapshot.Table, err)
}

func (r *unitRepoPG) Create(ctx context.Context, u *Unit) error {
	if u.Key == uuid.Nil {
		u.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `INSERT INTO unit (key) VALUES ($1)`, u.Key); err != nil {
			return sqlerr.ClassifyFor("unit", err)
		}
		u.Version = 1
		if err := insertUnitVersion(ctx, q, u); err != nil {
			return err
		}
		for i := range u.Rooms {
			u.Rooms[i].UnitKey = u.Key
			if err := insertRoom(ctx, q, &u.Rooms[i]); err != nil {
				return err
			}
		}
		if len(u.AreaKeys) > 0 {
			if err := linkAreas(ctx, q, u.Key, u.FacilityKey, u.AreaKeys); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update writes a new version of the unit's own fields. The facility of a
// unit never changes.
func (r *unitRepoPG) Update(ctx context.Context, u *Unit) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		facilityKey, err := lockUnit(ctx, q, u.Key)
		if err != nil {
			return err
		}
		closed, err := unitSnapshot.Close(ctx, q, u.Key, u.Version)
		if err != nil {
			return err
		}
		u.FacilityKey = facilityKey
		u.Version = closed + 1
		return insertUnitVersion(ctx, q, u)
	})
}

func (r *unitRepoPG) Delete(ctx context.Context, key uuid.UUID, expectedVersion int) error {
	_, err := unitSnapshot.Close(ctx, r.conn(ctx), key, expectedVersion)
	return err
}

// lockUnit row-locks the current unit version and returns its facility.
func lockUnit(ctx context.Context, q db.DB, key uuid.UUID) (uuid.UUID, error) {
	var facilityKey uuid.UUID
	err := q.QueryRow(ctx,
		`SELECT facility_key FROM unit_snapshot WHERE unit_key = $1 AND `+db.CurrentFilter+` FOR UPDATE`, key,
	).Scan(&facilityKey)
	return facilityKey, sqlerr.ClassifyFor("unit", err)
}

func insertRoom(ctx context.Context, q db.DB, rm *Room) error {
	if rm.Key == uuid.Nil {
		rm.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO room (key, unit_key, name, bed_count) VALUES ($1, $2, $3, $4)`,
		rm.Key, rm.UnitKey, rm.Name, rm.BedCount)
	return sqlerr.ClassifyFor("room", err)
}

// linkAreas associates areas with a unit. Areas of another facility are
// rejected as missing references.
func linkAreas(ctx context.Context, q db.DB, unitKey, facilityKey uuid.UUID, areaKeys []uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO unit_area (unit_key, area_key)
		SELECT $1, a.key FROM area a WHERE a.key = ANY($2) AND a.facility_key = $3`,
		unitKey, areaKeys, facilityKey)
	if err != nil {
		return sqlerr.ClassifyFor("unit_area", err)
	}
	if tag.RowsAffected() != int64(len(areaKeys)) {
		return sqlerr.MissingReferenceFor("area")
	}
	return nil
}

func (r *unitRepoPG) UpdateRooms(ctx context.Context, unitKey uuid.UUID, rooms []Room) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := lockUnit(ctx, q, unitKey); err != nil {
			return err
		}
		rows, err := q.Query(ctx, `SELECT key FROM room WHERE unit_key = $1`, unitKey)
		if err != nil {
			return sqlerr.ClassifyFor("room", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("room", err)
		}

		diff := reconcile.Items(current, rooms, func(rm Room) uuid.UUID { return rm.Key })
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM room WHERE unit_key = $1 AND key = ANY($2)`, unitKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("room", err)
			}
		}
		for _, rm := range diff.Updated {
			if _, err := q.Exec(ctx,
				`UPDATE room SET name = $3, bed_count = $4 WHERE unit_key = $1 AND key = $2`,
				unitKey, rm.Key, rm.Name, rm.BedCount); err != nil {
				return sqlerr.ClassifyFor("room", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].UnitKey = unitKey
			if err := insertRoom(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

func (r *unitRepoPG) UpdateAreas(ctx context.Context, unitKey uuid.UUID, areaKeys []uuid.UUID) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		facilityKey, err := lockUnit(ctx, q, unitKey)
		if err != nil {
			return err
		}
		rows, err := q.Query(ctx, `SELECT area_key FROM unit_area WHERE unit_key = $1`, unitKey)
		if err != nil {
			return sqlerr.ClassifyFor("unit_area", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("unit_area", err)
		}

		diff := reconcile.Diff(current, areaKeys)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM unit_area WHERE unit_key = $1 AND area_key = ANY($2)`, unitKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("unit_area", err)
			}
		}
		if len(diff.Added) > 0 {
			if err := linkAreas(ctx, q, unitKey, facilityKey, diff.Added); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

// -- Area Repository --

type areaRepoPG struct {
	pool db.DB
}

func NewAreaRepo(pool db.DB) AreaRepository {
	return &areaRepoPG{pool: pool}
}

func (r *areaRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const areaColumns = `key, facility_key, name, description`

func scanArea(row pgx.Row) (*Area, error) {
	var a Area
	if err := row.Scan(&a.Key, &a.FacilityKey, &a.Name, &a.Description); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *areaRepoPG) List(ctx context.Context, facilityKey uuid.UUID) ([]*Area, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+areaColumns+` FROM area WHERE facility_key = $1 ORDER BY name`, facilityKey)
	if err != nil {
		return nil, sqlerr.ClassifyFor("area", err)
	}
	defer rows.Close()
	var areas []*Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, sqlerr.ClassifyFor("area", err)
		}
		areas = append(areas, a)
	}
	return areas, sqlerr.ClassifyFor("area", rows.Err())
}

func (r *areaRepoPG) Get(ctx context.Context, key uuid.UUID) (*Area, error) {
	a, err := scanArea(r.conn(ctx).QueryRow(ctx, `SELECT `+areaColumns+` FROM area WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor("area", err)
	}
	return a, nil
}

func (r *areaRepoPG) Create(ctx context.Context, a *Area) error {
	if a.Key == uuid.Nil {
		a.Key = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO area (key, facility_key, name, description) VALUES ($1, $2, $3, $4)`,
		a.Key, a.FacilityKey, a.Name, a.Description)
	return sqlerr.ClassifyFor("area", err)
}

func (r *areaRepoPG) Update(ctx context.Context, a *Area) error {
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE area SET name = $2, description = $3 WHERE key = $1 RETURNING facility_key`,
		a.Key, a.Name, a.Description).Scan(&a.FacilityKey)
	return sqlerr.ClassifyFor("area", err)
}

func (r *areaRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM area WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("area", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor("area")
	}
	return nil
}
