package clinicaldata

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const table = "clinical_data_subject"

// -- Subject Repository --

type subjectRepoPG struct {
	pool db.DB
}

func NewSubjectRepo(pool db.DB) SubjectRepository {
	return &subjectRepoPG{pool: pool}
}

func (r *subjectRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const subjectColumns = `key, facility_key, title, description, active, response_required`

func scanSubject(row pgx.Row) (*Subject, error) {
	var s Subject
	if err := row.Scan(&s.Key, &s.FacilityKey, &s.Title, &s.Description, &s.Active, &s.ResponseRequired); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subjectRepoPG) List(ctx context.Context, facilityKey uuid.UUID, limit, offset int) ([]*Subject, int, error) {
	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM clinical_data_subject WHERE facility_key = $1`,
		facilityKey).Scan(&total); err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}

	rows, err := q.Query(ctx, `SELECT `+subjectColumns+` FROM clinical_data_subject
		WHERE facility_key = $1 ORDER BY title LIMIT $2 OFFSET $3`, facilityKey, limit, offset)
	if err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}
	var subjects []*Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			rows.Close()
			return nil, 0, sqlerr.ClassifyFor(table, err)
		}
		subjects = append(subjects, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, sqlerr.ClassifyFor(table, err)
	}
	if err := loadChildren(ctx, q, subjects); err != nil {
		return nil, 0, err
	}
	return subjects, total, nil
}

func (r *subjectRepoPG) Get(ctx context.Context, key uuid.UUID) (*Subject, error) {
	q := r.conn(ctx)
	s, err := scanSubject(q.QueryRow(ctx, `SELECT `+subjectColumns+` FROM clinical_data_subject WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadChildren(ctx, q, []*Subject{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// loadChildren fills responses and user type keys for all subjects with one
// query per child table.
func loadChildren(ctx context.Context, q db.DB, subjects []*Subject) error {
	if len(subjects) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Subject, len(subjects))
	keys := make([]uuid.UUID, 0, len(subjects))
	for _, s := range subjects {
		byKey[s.Key] = s
		keys = append(keys, s.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT key, subject_key, text, sort_order, kind
		FROM clinical_data_response WHERE subject_key = ANY($1)
		ORDER BY sort_order, text`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("clinical_data_response", err)
	}
	for rows.Next() {
		var resp Response
		if err := rows.Scan(&resp.Key, &resp.SubjectKey, &resp.Text, &resp.SortOrder, &resp.Kind); err != nil {
			rows.Close()
			return sqlerr.ClassifyFor("clinical_data_response", err)
		}
		if s := byKey[resp.SubjectKey]; s != nil {
			s.Responses = append(s.Responses, resp)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sqlerr.ClassifyFor("clinical_data_response", err)
	}

	rows, err = q.Query(ctx, `
		SELECT subject_key, user_type_key
		FROM clinical_data_subject_user_type WHERE subject_key = ANY($1)`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("clinical_data_subject_user_type", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subjectKey, userTypeKey uuid.UUID
		if err := rows.Scan(&subjectKey, &userTypeKey); err != nil {
			return sqlerr.ClassifyFor("clinical_data_subject_user_type", err)
		}
		if s := byKey[subjectKey]; s != nil {
			s.UserTypeKeys = append(s.UserTypeKeys, userTypeKey)
		}
	}
	return sqlerr.ClassifyFor("clinical_data_subject_user_type", rows.Err())
}

func insertResponse(ctx context.Context, q db.DB, resp *Response) error {
	if resp.Key == uuid.Nil {
		resp.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO clinical_data_response (key, subject_key, text, sort_order, kind)
		VALUES ($1, $2, $3, $4, $5)`,
		resp.Key, resp.SubjectKey, resp.Text, resp.SortOrder, string(resp.Kind))
	return sqlerr.ClassifyFor("clinical_data_response", err)
}

// linkUserTypes inserts only keys that name an existing user type. Any key
// that does not is reported as a missing reference.
func linkUserTypes(ctx context.Context, q db.DB, subjectKey uuid.UUID, userTypeKeys []uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO clinical_data_subject_user_type (subject_key, user_type_key)
		SELECT $1, t.key FROM clinical_data_user_type t WHERE t.key = ANY($2)`,
		subjectKey, userTypeKeys)
	if err != nil {
		return sqlerr.ClassifyFor("clinical_data_subject_user_type", err)
	}
	if tag.RowsAffected() != int64(len(userTypeKeys)) {
		return sqlerr.MissingReferenceFor("clinical_data_user_type")
	}
	return nil
}

func (r *subjectRepoPG) Create(ctx context.Context, s *Subject) error {
	if s.Key == uuid.Nil {
		s.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO clinical_data_subject (key, facility_key, title, description, active, response_required)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			s.Key, s.FacilityKey, s.Title, s.Description, s.Active, s.ResponseRequired)
		if err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		for i := range s.Responses {
			s.Responses[i].SubjectKey = s.Key
			if err := insertResponse(ctx, q, &s.Responses[i]); err != nil {
				return err
			}
		}
		if len(s.UserTypeKeys) > 0 {
			return linkUserTypes(ctx, q, s.Key, s.UserTypeKeys)
		}
		return nil
	})
}

// Update writes the subject row only. Facility is fixed at creation.
func (r *subjectRepoPG) Update(ctx context.Context, s *Subject) error {
	var facilityKey uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical_data_subject SET title = $2, description = $3, active = $4,
			response_required = $5, updated_utc = NOW()
		WHERE key = $1
		RETURNING facility_key`,
		s.Key, s.Title, s.Description, s.Active, s.ResponseRequired).Scan(&facilityKey)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	s.FacilityKey = facilityKey
	return nil
}

func (r *subjectRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinical_data_subject WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

func lockSubject(ctx context.Context, q db.DB, key uuid.UUID) error {
	var locked uuid.UUID
	err := q.QueryRow(ctx, `SELECT key FROM clinical_data_subject WHERE key = $1 FOR UPDATE`, key).Scan(&locked)
	return sqlerr.ClassifyFor(table, err)
}

func (r *subjectRepoPG) UpdateResponses(ctx context.Context, subjectKey uuid.UUID, responses []Response) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if err := lockSubject(ctx, q, subjectKey); err != nil {
			return err
		}
		rows, err := q.Query(ctx, `SELECT key FROM clinical_data_response WHERE subject_key = $1`, subjectKey)
		if err != nil {
			return sqlerr.ClassifyFor("clinical_data_response", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("clinical_data_response", err)
		}

		diff := reconcile.Items(current, responses, func(r Response) uuid.UUID { return r.Key })
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM clinical_data_response WHERE subject_key = $1 AND key = ANY($2)`,
				subjectKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("clinical_data_response", err)
			}
		}
		for _, resp := range diff.Updated {
			if _, err := q.Exec(ctx, `
				UPDATE clinical_data_response SET text = $3, sort_order = $4, kind = $5
				WHERE subject_key = $1 AND key = $2`,
				subjectKey, resp.Key, resp.Text, resp.SortOrder, string(resp.Kind)); err != nil {
				return sqlerr.ClassifyFor("clinical_data_response", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].SubjectKey = subjectKey
			if err := insertResponse(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

func (r *subjectRepoPG) UpdateUserTypes(ctx context.Context, subjectKey uuid.UUID, userTypeKeys []uuid.UUID) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if err := lockSubject(ctx, q, subjectKey); err != nil {
			return err
		}
		rows, err := q.Query(ctx,
			`SELECT user_type_key FROM clinical_data_subject_user_type WHERE subject_key = $1`, subjectKey)
		if err != nil {
			return sqlerr.ClassifyFor("clinical_data_subject_user_type", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("clinical_data_subject_user_type", err)
		}

		diff := reconcile.Diff(current, userTypeKeys)
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx, `
				DELETE FROM clinical_data_subject_user_type
				WHERE subject_key = $1 AND user_type_key = ANY($2)`,
				subjectKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("clinical_data_subject_user_type", err)
			}
		}
		if len(diff.Added) > 0 {
			if err := linkUserTypes(ctx, q, subjectKey, diff.Added); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

// -- User Type Repository --

type userTypeRepoPG struct {
	pool db.DB
}

func NewUserTypeRepo(pool db.DB) UserTypeRepository {
	return &userTypeRepoPG{pool: pool}
}

func (r *userTypeRepoPG) List(ctx context.Context) ([]*UserType, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx,
		`SELECT key, name, description FROM clinical_data_user_type ORDER BY name`)
	if err != nil {
		return nil, sqlerr.ClassifyFor("clinical_data_user_type", err)
	}
	types, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*UserType, error) {
		var u UserType
		err := row.Scan(&u.Key, &u.Name, &u.Description)
		return &u, err
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor("clinical_data_user_type", err)
	}
	return types, nil
}

func (r *userTypeRepoPG) Create(ctx context.Context, u *UserType) error {
	if u.Key == uuid.Nil {
		u.Key = uuid.New()
	}
	_, err := db.Executor(ctx, r.pool).Exec(ctx,
		`INSERT INTO clinical_data_user_type (key, name, description) VALUES ($1, $2, $3)`,
		u.Key, u.Name, u.Description)
	return sqlerr.ClassifyFor("clinical_data_user_type", err)
}

func (r *userTypeRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM clinical_data_user_type WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("clinical_data_user_type", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor("clinical_data_user_type")
	}
	return nil
}
