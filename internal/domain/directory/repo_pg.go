package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

// -- Domain Repository --

type domainRepoPG struct {
	pool db.DB
}

func NewDomainRepo(pool db.DB) DomainRepository {
	return &domainRepoPG{pool: pool}
}

func (r *domainRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const domainColumns = `key, fully_qualified_name, short_name, scheduled_sync_enabled,
	sync_interval_minutes, user_name, last_sync_utc, version`

func scanDomain(row pgx.Row) (*Domain, error) {
	var d Domain
	err := row.Scan(&d.Key, &d.FullyQualifiedName, &d.ShortName, &d.ScheduledSyncEnabled,
		&d.SyncIntervalMinutes, &d.UserName, &d.LastSyncUTC, &d.Version)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *domainRepoPG) List(ctx context.Context) ([]*Domain, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+domainColumns+` FROM ad_domain ORDER BY fully_qualified_name`)
	if err != nil {
		return nil, sqlerr.ClassifyFor("ad_domain", err)
	}
	defer rows.Close()
	var domains []*Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, sqlerr.ClassifyFor("ad_domain", err)
		}
		domains = append(domains, d)
	}
	return domains, sqlerr.ClassifyFor("ad_domain", rows.Err())
}

func (r *domainRepoPG) Get(ctx context.Context, key uuid.UUID) (*Domain, error) {
	d, err := scanDomain(r.conn(ctx).QueryRow(ctx, `SELECT `+domainColumns+` FROM ad_domain WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor("ad_domain", err)
	}
	return d, nil
}

func (r *domainRepoPG) GetByName(ctx context.Context, name string) (*Domain, error) {
	d, err := scanDomain(r.conn(ctx).QueryRow(ctx,
		`SELECT `+domainColumns+` FROM ad_domain WHERE lower(fully_qualified_name) = lower($1)`, name))
	if err != nil {
		return nil, sqlerr.ClassifyFor("ad_domain", err)
	}
	return d, nil
}

func (r *domainRepoPG) Create(ctx context.Context, d *Domain) error {
	if d.Key == uuid.Nil {
		d.Key = uuid.New()
	}
	d.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ad_domain (key, fully_qualified_name, short_name, scheduled_sync_enabled,
			sync_interval_minutes, user_name, last_sync_utc, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.Key, d.FullyQualifiedName, d.ShortName, d.ScheduledSyncEnabled,
		d.SyncIntervalMinutes, d.UserName, d.LastSyncUTC, d.Version)
	return sqlerr.ClassifyFor("ad_domain", err)
}

// Update writes the domain when its stored version equals d.Version and
// bumps the version on success.
func (r *domainRepoPG) Update(ctx context.Context, d *Domain) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		UPDATE ad_domain SET fully_qualified_name = $3, short_name = $4, scheduled_sync_enabled = $5,
			sync_interval_minutes = $6, user_name = $7, last_sync_utc = $8,
			version = version + 1, updated_utc = NOW()
		WHERE key = $1 AND version = $2
		RETURNING version`,
		d.Key, d.Version, d.FullyQualifiedName, d.ShortName, d.ScheduledSyncEnabled,
		d.SyncIntervalMinutes, d.UserName, d.LastSyncUTC,
	).Scan(&d.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return sqlerr.ClassifyFor("ad_domain", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ad_domain WHERE key = $1)`, d.Key).Scan(&exists); err != nil {
		return sqlerr.ClassifyFor("ad_domain", err)
	}
	if exists {
		return sqlerr.ConcurrencyFor("ad_domain")
	}
	return sqlerr.NotFoundFor("ad_domain")
}

// Delete removes the domain. Its groups and their user memberships go with
// it through the foreign keys.
func (r *domainRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM ad_domain WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("ad_domain", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor("ad_domain")
	}
	return nil
}

// -- Group Repository --

type groupRepoPG struct {
	pool db.DB
}

func NewGroupRepo(pool db.DB) GroupRepository {
	return &groupRepoPG{pool: pool}
}

func (r *groupRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const groupColumns = `g.key, g.domain_key, g.name, g.security_identifier, g.description`

func (r *groupRepoPG) collect(ctx context.Context, sql string, args ...any) ([]*Group, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor("ad_group", err)
	}
	defer rows.Close()
	var groups []*Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Key, &g.DomainKey, &g.Name, &g.SecurityIdentifier, &g.Description); err != nil {
			return nil, sqlerr.ClassifyFor("ad_group", err)
		}
		groups = append(groups, &g)
	}
	return groups, sqlerr.ClassifyFor("ad_group", rows.Err())
}

func (r *groupRepoPG) List(ctx context.Context, domainKey uuid.UUID) ([]*Group, error) {
	return r.collect(ctx, `SELECT `+groupColumns+` FROM ad_group g WHERE g.domain_key = $1 ORDER BY g.name`, domainKey)
}

// GetByKeys returns the groups found for keys. Unknown keys are skipped.
func (r *groupRepoPG) GetByKeys(ctx context.Context, keys []uuid.UUID) ([]*Group, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return r.collect(ctx, `SELECT `+groupColumns+` FROM ad_group g WHERE g.key = ANY($1) ORDER BY g.name`, keys)
}

func (r *groupRepoPG) Create(ctx context.Context, g *Group) error {
	if g.Key == uuid.Nil {
		g.Key = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ad_group (key, domain_key, name, security_identifier, description)
		VALUES ($1, $2, $3, $4, $5)`,
		g.Key, g.DomainKey, g.Name, g.SecurityIdentifier, g.Description)
	return sqlerr.ClassifyFor("ad_group", err)
}

func (r *groupRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM ad_group WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("ad_group", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor("ad_group")
	}
	return nil
}

func (r *groupRepoPG) ListForUser(ctx context.Context, userKey uuid.UUID) ([]*Group, error) {
	return r.collect(ctx, `SELECT `+groupColumns+`
		FROM user_directory_group udg
		JOIN ad_group g ON g.key = udg.group_key
		WHERE udg.user_key = $1
		ORDER BY g.name`, userKey)
}

func (r *groupRepoPG) UpdateUserGroups(ctx context.Context, userKey uuid.UUID, groupKeys []uuid.UUID) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		rows, err := q.Query(ctx,
			`SELECT group_key FROM user_directory_group WHERE user_key = $1 FOR UPDATE`, userKey)
		if err != nil {
			return sqlerr.ClassifyFor("user_directory_group", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("user_directory_group", err)
		}

		diff := reconcile.Diff(current, groupKeys)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM user_directory_group WHERE user_key = $1 AND group_key = ANY($2)`,
				userKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("user_directory_group", err)
			}
		}
		if len(diff.Added) > 0 {
			if _, err := q.Exec(ctx, `
				INSERT INTO user_directory_group (user_key, group_key)
				SELECT $1, unnest($2::uuid[])`,
				userKey, diff.Added); err != nil {
				return sqlerr.ClassifyFor("ad_group", err)
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}
