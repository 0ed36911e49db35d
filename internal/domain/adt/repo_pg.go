package adt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/dispensing/internal/platform/codes"
	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

func requireOne(tag pgconn.CommandTag, table string) error {
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool db.DB
}

func NewPatientRepo(pool db.DB) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const patientColumns = `p.key, p.facility_key, p.external_id, p.id_type, p.family_name,
	p.given_name, p.middle_name, p.birth_date, p.gender`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.Key, &p.FacilityKey, &p.ExternalID, &p.IDType, &p.FamilyName,
		&p.GivenName, &p.MiddleName, &p.BirthDate, &p.Gender)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) collect(ctx context.Context, q db.DB, sql string, args ...any) ([]*Patient, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, sqlerr.ClassifyFor("patient", err)
	}
	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			rows.Close()
			return nil, sqlerr.ClassifyFor("patient", err)
		}
		patients = append(patients, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, sqlerr.ClassifyFor("patient", err)
	}
	if err := loadAllergies(ctx, q, patients); err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *patientRepoPG) Search(ctx context.Context, search PatientSearch, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if search.FacilityKey != uuid.Nil {
		where += fmt.Sprintf(` AND p.facility_key = $%d`, idx)
		args = append(args, search.FacilityKey)
		idx++
	}
	if search.Name != "" {
		where += fmt.Sprintf(` AND (lower(p.family_name) LIKE lower($%d) OR lower(p.given_name) LIKE lower($%d))`, idx, idx)
		args = append(args, db.PrefixPattern(search.Name))
		idx++
	}
	if search.ExternalID != "" {
		where += fmt.Sprintf(` AND p.external_id = $%d`, idx)
		args = append(args, search.ExternalID)
		idx++
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient p`+where, args...).Scan(&total); err != nil {
		return nil, 0, sqlerr.ClassifyFor("patient", err)
	}

	query := `SELECT ` + patientColumns + ` FROM patient p` + where +
		fmt.Sprintf(` ORDER BY p.family_name, p.given_name, p.key LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	patients, err := r.collect(ctx, q, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

func (r *patientRepoPG) Get(ctx context.Context, key uuid.UUID) (*Patient, error) {
	q := r.conn(ctx)
	p, err := scanPatient(q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patient p WHERE p.key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor("patient", err)
	}
	if err := loadAllergies(ctx, q, []*Patient{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByKeys returns the patients found for keys. Allergies come from a second
// key-list query and are joined in memory.
func (r *patientRepoPG) GetByKeys(ctx context.Context, keys []uuid.UUID) ([]*Patient, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return r.collect(ctx, r.conn(ctx),
		`SELECT `+patientColumns+` FROM patient p WHERE p.key = ANY($1) ORDER BY p.family_name, p.key`, keys)
}

func loadAllergies(ctx context.Context, q db.DB, patients []*Patient) error {
	if len(patients) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Patient, len(patients))
	keys := make([]uuid.UUID, 0, len(patients))
	for _, p := range patients {
		byKey[p.Key] = p
		keys = append(keys, p.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT key, patient_key, code, description, severity
		FROM patient_allergy WHERE patient_key = ANY($1)
		ORDER BY code`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("patient_allergy", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Allergy
		if err := rows.Scan(&a.Key, &a.PatientKey, &a.Code, &a.Description, &a.Severity); err != nil {
			return sqlerr.ClassifyFor("patient_allergy", err)
		}
		if p := byKey[a.PatientKey]; p != nil {
			p.Allergies = append(p.Allergies, a)
		}
	}
	return sqlerr.ClassifyFor("patient_allergy", rows.Err())
}

func insertAllergy(ctx context.Context, q db.DB, a *Allergy) error {
	if a.Key == uuid.Nil {
		a.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO patient_allergy (key, patient_key, code, description, severity)
		VALUES ($1, $2, $3, $4, $5)`,
		a.Key, a.PatientKey, a.Code, a.Description, string(a.Severity))
	return sqlerr.ClassifyFor("patient_allergy", err)
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.Key == uuid.Nil {
		p.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO patient (key, facility_key, external_id, id_type, family_name,
				given_name, middle_name, birth_date, gender)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.Key, p.FacilityKey, p.ExternalID, string(p.IDType), p.FamilyName,
			p.GivenName, p.MiddleName, p.BirthDate, string(p.Gender))
		if err != nil {
			return sqlerr.ClassifyFor("patient", err)
		}
		for i := range p.Allergies {
			p.Allergies[i].PatientKey = p.Key
			if err := insertAllergy(ctx, q, &p.Allergies[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update writes the demographic fields. Facility and allergies are untouched.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET external_id = $2, id_type = $3, family_name = $4, given_name = $5,
			middle_name = $6, birth_date = $7, gender = $8, updated_utc = NOW()
		WHERE key = $1`,
		p.Key, p.ExternalID, string(p.IDType), p.FamilyName, p.GivenName,
		p.MiddleName, p.BirthDate, string(p.Gender))
	if err != nil {
		return sqlerr.ClassifyFor("patient", err)
	}
	return requireOne(tag, "patient")
}

func (r *patientRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("patient", err)
	}
	return requireOne(tag, "patient")
}

func (r *patientRepoPG) UpdateAllergies(ctx context.Context, patientKey uuid.UUID, allergies []Allergy) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked uuid.UUID
		if err := q.QueryRow(ctx, `SELECT key FROM patient WHERE key = $1 FOR UPDATE`, patientKey).Scan(&locked); err != nil {
			return sqlerr.ClassifyFor("patient", err)
		}
		rows, err := q.Query(ctx, `SELECT key FROM patient_allergy WHERE patient_key = $1`, patientKey)
		if err != nil {
			return sqlerr.ClassifyFor("patient_allergy", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return sqlerr.ClassifyFor("patient_allergy", err)
		}

		diff := reconcile.Items(current, allergies, func(a Allergy) uuid.UUID { return a.Key })
		if len(diff.Removed) > 0 {
			if _, err := q.Exec(ctx,
				`DELETE FROM patient_allergy WHERE patient_key = $1 AND key = ANY($2)`,
				patientKey, diff.Removed); err != nil {
				return sqlerr.ClassifyFor("patient_allergy", err)
			}
		}
		for _, a := range diff.Updated {
			if _, err := q.Exec(ctx, `
				UPDATE patient_allergy SET code = $3, description = $4, severity = $5
				WHERE patient_key = $1 AND key = $2`,
				patientKey, a.Key, a.Code, a.Description, string(a.Severity)); err != nil {
				return sqlerr.ClassifyFor("patient_allergy", err)
			}
		}
		for i := range diff.Added {
			diff.Added[i].PatientKey = patientKey
			if err := insertAllergy(ctx, q, &diff.Added[i]); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

// -- Encounter Repository --

type encounterRepoPG struct {
	pool db.DB
}

func NewEncounterRepo(pool db.DB) EncounterRepository {
	return &encounterRepoPG{pool: pool}
}

func (r *encounterRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const encounterColumns = `e.key, e.patient_key, e.facility_key, e.visit_id, e.status,
	e.admit_utc, e.discharge_utc, e.unit_key, e.room_key, e.bed`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.Key, &e.PatientKey, &e.FacilityKey, &e.VisitID, &e.Status,
		&e.AdmitUTC, &e.DischargeUTC, &e.UnitKey, &e.RoomKey, &e.Bed)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *encounterRepoPG) ListByPatient(ctx context.Context, patientKey uuid.UUID) ([]*Encounter, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+encounterColumns+` FROM encounter e
		WHERE e.patient_key = $1 ORDER BY e.admit_utc DESC NULLS FIRST, e.visit_id`, patientKey)
	if err != nil {
		return nil, sqlerr.ClassifyFor("encounter", err)
	}
	var encounters []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			rows.Close()
			return nil, sqlerr.ClassifyFor("encounter", err)
		}
		encounters = append(encounters, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, sqlerr.ClassifyFor("encounter", err)
	}
	if err := loadPhysicians(ctx, q, encounters); err != nil {
		return nil, err
	}
	return encounters, nil
}

func (r *encounterRepoPG) Get(ctx context.Context, key uuid.UUID) (*Encounter, error) {
	q := r.conn(ctx)
	e, err := scanEncounter(q.QueryRow(ctx, `SELECT `+encounterColumns+` FROM encounter e WHERE e.key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor("encounter", err)
	}
	if err := loadPhysicians(ctx, q, []*Encounter{e}); err != nil {
		return nil, err
	}
	return e, nil
}

func loadPhysicians(ctx context.Context, q db.DB, encounters []*Encounter) error {
	if len(encounters) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Encounter, len(encounters))
	keys := make([]uuid.UUID, 0, len(encounters))
	for _, e := range encounters {
		byKey[e.Key] = e
		keys = append(keys, e.Key)
	}

	rows, err := q.Query(ctx, `
		SELECT encounter_key, physician_key, role
		FROM encounter_physician WHERE encounter_key = ANY($1)
		ORDER BY role, physician_key`, keys)
	if err != nil {
		return sqlerr.ClassifyFor("encounter_physician", err)
	}
	defer rows.Close()
	for rows.Next() {
		var encounterKey uuid.UUID
		var ep EncounterPhysician
		if err := rows.Scan(&encounterKey, &ep.PhysicianKey, &ep.Role); err != nil {
			return sqlerr.ClassifyFor("encounter_physician", err)
		}
		if e := byKey[encounterKey]; e != nil {
			e.Physicians = append(e.Physicians, ep)
		}
	}
	return sqlerr.ClassifyFor("encounter_physician", rows.Err())
}

func insertPhysicians(ctx context.Context, q db.DB, encounterKey uuid.UUID, physicians []EncounterPhysician) error {
	keys := make([]uuid.UUID, len(physicians))
	roles := make([]PhysicianRole, len(physicians))
	for i, ep := range physicians {
		keys[i], roles[i] = ep.PhysicianKey, ep.Role
	}
	_, err := q.Exec(ctx, `
		INSERT INTO encounter_physician (encounter_key, physician_key, role)
		SELECT $1, k, r FROM unnest($2::uuid[], $3::text[]) AS t (k, r)`,
		encounterKey, keys, codes.Strings(roles))
	return sqlerr.ClassifyFor("encounter_physician", err)
}

func (r *encounterRepoPG) Create(ctx context.Context, e *Encounter) error {
	if e.Key == uuid.Nil {
		e.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO encounter (key, patient_key, facility_key, visit_id, status,
				admit_utc, discharge_utc, unit_key, room_key, bed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.Key, e.PatientKey, e.FacilityKey, e.VisitID, string(e.Status),
			e.AdmitUTC, e.DischargeUTC, e.UnitKey, e.RoomKey, e.Bed)
		if err != nil {
			return sqlerr.ClassifyFor("encounter", err)
		}
		if len(e.Physicians) > 0 {
			return insertPhysicians(ctx, q, e.Key, e.Physicians)
		}
		return nil
	})
}

// Update writes status, timing and placement. Patient and facility are fixed.
func (r *encounterRepoPG) Update(ctx context.Context, e *Encounter) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter SET visit_id = $2, status = $3, admit_utc = $4, discharge_utc = $5,
			unit_key = $6, room_key = $7, bed = $8, updated_utc = NOW()
		WHERE key = $1`,
		e.Key, e.VisitID, string(e.Status), e.AdmitUTC, e.DischargeUTC, e.UnitKey, e.RoomKey, e.Bed)
	if err != nil {
		return sqlerr.ClassifyFor("encounter", err)
	}
	return requireOne(tag, "encounter")
}

func (r *encounterRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM encounter WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("encounter", err)
	}
	return requireOne(tag, "encounter")
}

func (r *encounterRepoPG) UpdatePhysicians(ctx context.Context, encounterKey uuid.UUID, physicians []EncounterPhysician) (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked uuid.UUID
		if err := q.QueryRow(ctx, `SELECT key FROM encounter WHERE key = $1 FOR UPDATE`, encounterKey).Scan(&locked); err != nil {
			return sqlerr.ClassifyFor("encounter", err)
		}
		rows, err := q.Query(ctx,
			`SELECT physician_key, role FROM encounter_physician WHERE encounter_key = $1`, encounterKey)
		if err != nil {
			return sqlerr.ClassifyFor("encounter_physician", err)
		}
		current, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EncounterPhysician, error) {
			var ep EncounterPhysician
			err := row.Scan(&ep.PhysicianKey, &ep.Role)
			return ep, err
		})
		if err != nil {
			return sqlerr.ClassifyFor("encounter_physician", err)
		}

		diff := reconcile.Diff(current, physicians)
		for _, ep := range diff.Removed {
			if _, err := q.Exec(ctx,
				`DELETE FROM encounter_physician WHERE encounter_key = $1 AND physician_key = $2 AND role = $3`,
				encounterKey, ep.PhysicianKey, string(ep.Role)); err != nil {
				return sqlerr.ClassifyFor("encounter_physician", err)
			}
		}
		if len(diff.Added) > 0 {
			if err := insertPhysicians(ctx, q, encounterKey, diff.Added); err != nil {
				return err
			}
		}
		summary = diff.Summary()
		return nil
	})
	return summary, err
}

// Discharge moves an admitted encounter to DISCHARGED. An encounter that is
// no longer admitted when the row is written is reported as a conflict.
func (r *encounterRepoPG) Discharge(ctx context.Context, key uuid.UUID, at time.Time) error {
	q := r.conn(ctx)
	var status EncounterStatus
	err := q.QueryRow(ctx, `
		UPDATE encounter SET status = $3, discharge_utc = $2, updated_utc = NOW()
		WHERE key = $1 AND status = $4
		RETURNING status`,
		key, at, string(StatusDischarged), string(StatusAdmitted)).Scan(&status)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return sqlerr.ClassifyFor("encounter", err)
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM encounter WHERE key = $1)`, key).Scan(&exists); err != nil {
		return sqlerr.ClassifyFor("encounter", err)
	}
	if exists {
		return sqlerr.ConcurrencyFor("encounter")
	}
	return sqlerr.NotFoundFor("encounter")
}

// -- Physician Repository --

type physicianRepoPG struct {
	pool db.DB
}

func NewPhysicianRepo(pool db.DB) PhysicianRepository {
	return &physicianRepoPG{pool: pool}
}

func (r *physicianRepoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const physicianColumns = `key, external_id, full_name, active`

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	if err := row.Scan(&p.Key, &p.ExternalID, &p.FullName, &p.Active); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *physicianRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Physician, int, error) {
	where := ` WHERE ($1::bool = FALSE OR active)`
	q := r.conn(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM physician`+where, activeOnly).Scan(&total); err != nil {
		return nil, 0, sqlerr.ClassifyFor("physician", err)
	}
	rows, err := q.Query(ctx, `SELECT `+physicianColumns+` FROM physician`+where+
		` ORDER BY full_name LIMIT $2 OFFSET $3`, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, sqlerr.ClassifyFor("physician", err)
	}
	defer rows.Close()
	var physicians []*Physician
	for rows.Next() {
		p, err := scanPhysician(rows)
		if err != nil {
			return nil, 0, sqlerr.ClassifyFor("physician", err)
		}
		physicians = append(physicians, p)
	}
	return physicians, total, sqlerr.ClassifyFor("physician", rows.Err())
}

func (r *physicianRepoPG) Get(ctx context.Context, key uuid.UUID) (*Physician, error) {
	p, err := scanPhysician(r.conn(ctx).QueryRow(ctx, `SELECT `+physicianColumns+` FROM physician WHERE key = $1`, key))
	if err != nil {
		return nil, sqlerr.ClassifyFor("physician", err)
	}
	return p, nil
}

func (r *physicianRepoPG) GetByExternalID(ctx context.Context, externalID string) (*Physician, error) {
	p, err := scanPhysician(r.conn(ctx).QueryRow(ctx,
		`SELECT `+physicianColumns+` FROM physician WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, sqlerr.ClassifyFor("physician", err)
	}
	return p, nil
}

func (r *physicianRepoPG) Create(ctx context.Context, p *Physician) error {
	if p.Key == uuid.Nil {
		p.Key = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO physician (key, external_id, full_name, active) VALUES ($1, $2, $3, $4)`,
		p.Key, p.ExternalID, p.FullName, p.Active)
	return sqlerr.ClassifyFor("physician", err)
}

func (r *physicianRepoPG) Update(ctx context.Context, p *Physician) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE physician SET external_id = $2, full_name = $3, active = $4 WHERE key = $1`,
		p.Key, p.ExternalID, p.FullName, p.Active)
	if err != nil {
		return sqlerr.ClassifyFor("physician", err)
	}
	return requireOne(tag, "physician")
}

func (r *physicianRepoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM physician WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor("physician", err)
	}
	return requireOne(tag, "physician")
}
