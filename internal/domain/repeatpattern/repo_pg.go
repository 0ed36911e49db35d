package repeatpattern

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "repeat_pattern"

var snapshot = db.Snapshot{Table: "repeat_pattern_snapshot", KeyColumn: "pattern_key"}

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const patternColumns = `s.pattern_key, s.facility_key, s.code, s.description, s.pattern_type,
	s.scheduled_times, s.active, s.version, s.start_utc, s.end_utc`

func scanPattern(row pgx.Row) (*Pattern, error) {
	var p Pattern
	err := row.Scan(&p.Key, &p.FacilityKey, &p.Code, &p.Description, &p.Type,
		&p.ScheduledTimes, &p.Active, &p.Version, &p.StartUTC, &p.EndUTC)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) collect(ctx context.Context, sql string, args ...any) ([]*Pattern, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	defer rows.Close()
	var patterns []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, sqlerr.ClassifyFor(table, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, sqlerr.ClassifyFor(table, rows.Err())
}

func (r *repoPG) List(ctx context.Context, facilityKey uuid.UUID, limit, offset int) ([]*Pattern, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM repeat_pattern_snapshot s WHERE s.facility_key = $1 AND s.`+db.CurrentFilter,
		facilityKey).Scan(&total)
	if err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}
	patterns, err := r.collect(ctx, `SELECT `+patternColumns+` FROM repeat_pattern_snapshot s
		WHERE s.facility_key = $1 AND s.`+db.CurrentFilter+`
		ORDER BY s.code LIMIT $2 OFFSET $3`, facilityKey, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return patterns, total, nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*Pattern, error) {
	p, err := scanPattern(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patternColumns+` FROM repeat_pattern_snapshot s WHERE s.pattern_key = $1 AND s.`+db.CurrentFilter, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	return p, nil
}

func insertVersion(ctx context.Context, q db.DB, p *Pattern) error {
	times := p.ScheduledTimes
	if times == nil {
		times = []string{}
	}
	err := q.QueryRow(ctx, `
		INSERT INTO repeat_pattern_snapshot (
			pattern_key, facility_key, code, description, pattern_type, scheduled_times, active, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING start_utc`,
		p.Key, p.FacilityKey, p.Code, p.Description, string(p.Type), times, p.Active, p.Version,
	).Scan(&p.StartUTC)
	return sqlerr.ClassifyFor(snapshot.Table, err)
}

func (r *repoPG) Create(ctx context.Context, p *Pattern) error {
	if p.Key == uuid.Nil {
		p.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `INSERT INTO repeat_pattern (key) VALUES ($1)`, p.Key); err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		p.Version = 1
		return insertVersion(ctx, q, p)
	})
}

func (r *repoPG) Update(ctx context.Context, p *Pattern) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		closed, err := snapshot.Close(ctx, q, p.Key, p.Version)
		if err != nil {
			return err
		}
		p.Version = closed + 1
		return insertVersion(ctx, q, p)
	})
}

// Delete closes the current version and drops the pattern from every unit.
func (r *repoPG) Delete(ctx context.Context, key uuid.UUID, expectedVersion int) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := snapshot.Close(ctx, q, key, expectedVersion); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `DELETE FROM unit_repeat_pattern WHERE pattern_key = $1`, key)
		return sqlerr.ClassifyFor("unit_repeat_pattern", err)
	})
}

func (r *repoPG) ListForUnit(ctx context.Context, unitKey uuid.UUID) ([]*Pattern, error) {
	return r.collect(ctx, `SELECT `+patternColumns+`
		FROM unit_repeat_pattern urp
		JOIN repeat_pattern_snapshot s ON s.pattern_key = urp.pattern_key AND s.`+db.CurrentFilter+`
		WHERE urp.unit_key = $1
		ORDER BY s.code`, unitKey)
}

func (r *repoPG) UnitPatternKeys(ctx context.Context, unitKey uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT pattern_key FROM unit_repeat_pattern WHERE unit_key = $1 ORDER BY pattern_key`, unitKey)
	if err != nil {
		return nil, sqlerr.ClassifyFor("unit_repeat_pattern", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, sqlerr.ClassifyFor("unit_repeat_pattern", err)
	}
	return keys, nil
}

// UpdateUnitPatterns replaces the patterns offered on a unit. Added patterns
// must be current and belong to the unit's facility.
func (r *repoPG) UpdateUnitPatterns(ctx context.Context, unitKey uuid.UUID, patternKeys []uuid.UUID) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var facilityKey uuid.UUID
		err := q.QueryRow(ctx,
			`SELECT facility_key FROM unit_snapshot WHERE unit_key = $1 AND `+db.CurrentFilter+` FOR UPDATE`, unitKey,
		).Scan(&facilityKey)
		if err != nil {
			return sqlerr.ClassifyFor("unit", err)
		}

		rows, err := q.Query(ctx, `SELECT pattern_key FROM unit_repeat_pattern WHERE unit_key = $1`, unitKey)
		if err != nil {
			return sqlerr.ClassifyFor("unit_repeat_pattern", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("unit_repeat_pattern", err)
		}

		diff := reconcile.Diff(current, patternKeys)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM unit_repeat_pattern WHERE unit_key = $1 AND pattern_key = ANY($2)`,
				unitKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("unit_repeat_pattern", err)
			}
		}
		if len(diff.Added) > 0 {
			tag, err := q.Exec(ctx, `
				INSERT INTO unit_repeat_pattern (unit_key, pattern_key)
				SELECT $1, s.pattern_key FROM repeat_pattern_snapshot s
				WHERE s.pattern_key = ANY($2) AND s.facility_key = $3 AND s.`+db.CurrentFilter,
				unitKey, diff.Added, facilityKey)
			if err != nil {
				return sqlerr.ClassifyFor("unit_repeat_pattern", err)
			}
			if tag.RowsAffected() != int64(len(diff.Added)) {
				return sqlerr.MissingReferenceFor(table)
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
