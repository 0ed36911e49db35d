package adt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var patientCols = []string{"key", "facility_key", "external_id", "id_type", "family_name",
	"given_name", "middle_name", "birth_date", "gender"}

func TestPatientRepo_GetByKeys_JoinsAllergies(t *testing.T) {
	mock := newMock(t)
	repo := NewPatientRepo(mock)
	facility := uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	var noText *string

	mock.ExpectQuery("FROM patient p WHERE p.key = ANY\\(\\$1\\)").
		WithArgs([]uuid.UUID{p1, p2}).
		WillReturnRows(pgxmock.NewRows(patientCols).
			AddRow(p1, facility, "100", "MRN", "Abara", strPtr("Chidi"), noText, nil, "M").
			AddRow(p2, facility, "200", "ACCOUNT", "Berg", noText, noText, nil, "F"))
	mock.ExpectQuery("FROM patient_allergy WHERE patient_key = ANY").
		WithArgs([]uuid.UUID{p1, p2}).
		WillReturnRows(pgxmock.NewRows([]string{"key", "patient_key", "code", "description", "severity"}).
			AddRow(uuid.New(), p2, "LATEX", "Latex", "MILD").
			AddRow(uuid.New(), p2, "PCN", "Penicillin", "SEVERE"))

	patients, err := repo.GetByKeys(context.Background(), []uuid.UUID{p1, p2})
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, "Chidi", *patients[0].GivenName)
	assert.Equal(t, GenderMale, patients[0].Gender)
	assert.Empty(t, patients[0].Allergies)
	assert.Equal(t, IDTypeAccount, patients[1].IDType)
	require.Len(t, patients[1].Allergies, 2)
	assert.Equal(t, SeveritySevere, patients[1].Allergies[1].Severity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepo_GetByKeys_Empty(t *testing.T) {
	mock := newMock(t)
	patients, err := NewPatientRepo(mock).GetByKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, patients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepo_Get_UnknownGender(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	var noText *string

	mock.ExpectQuery("FROM patient p WHERE p.key = \\$1").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows(patientCols).
			AddRow(key, uuid.New(), "100", "MRN", "Abara", noText, noText, nil, "Z"))

	_, err := NewPatientRepo(mock).Get(context.Background(), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown gender code "Z"`)
}

func TestPatientRepo_Search_BuildsFilters(t *testing.T) {
	mock := newMock(t)
	facility := uuid.New()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM patient p WHERE 1=1 AND p.facility_key = \\$1 AND \\(lower\\(p.family_name\\) LIKE lower\\(\\$2\\)").
		WithArgs(facility, "okaf%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM patient p WHERE .* LIMIT \\$3 OFFSET \\$4").
		WithArgs(facility, "okaf%", 20, 40).
		WillReturnRows(pgxmock.NewRows(patientCols))

	patients, total, err := NewPatientRepo(mock).Search(context.Background(),
		PatientSearch{FacilityKey: facility, Name: "okaf"}, 20, 40)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, patients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepo_Search_EscapesWildcards(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM patient p WHERE 1=1 AND \\(lower\\(p.family_name\\) LIKE lower\\(\\$1\\)").
		WithArgs(`o\%k%`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM patient p WHERE .* LIMIT \\$2 OFFSET \\$3").
		WithArgs(`o\%k%`, 20, 0).
		WillReturnRows(pgxmock.NewRows(patientCols))

	_, _, err := NewPatientRepo(mock).Search(context.Background(), PatientSearch{Name: "o%k"}, 20, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepo_UpdateAllergies(t *testing.T) {
	mock := newMock(t)
	repo := NewPatientRepo(mock)
	patient := uuid.New()
	kept, dropped := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM patient WHERE key = \\$1 FOR UPDATE").
		WithArgs(patient).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(patient))
	mock.ExpectQuery("SELECT key FROM patient_allergy WHERE patient_key = \\$1").
		WithArgs(patient).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(kept).AddRow(dropped))
	mock.ExpectExec("DELETE FROM patient_allergy").
		WithArgs(patient, []uuid.UUID{dropped}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("UPDATE patient_allergy SET").
		WithArgs(patient, kept, "PCN", "Penicillin", "SEVERE").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO patient_allergy").
		WithArgs(pgxmock.AnyArg(), patient, "LATEX", "Latex", "MILD").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	summary, err := repo.UpdateAllergies(context.Background(), patient, []Allergy{
		{Key: kept, Code: "PCN", Description: "Penicillin", Severity: SeveritySevere},
		{Code: "LATEX", Description: "Latex", Severity: SeverityMild},
	})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Updated: 1, Removed: 1}, summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepo_UpdateAllergies_UnknownPatient(t *testing.T) {
	mock := newMock(t)
	patient := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM patient WHERE key = \\$1 FOR UPDATE").
		WithArgs(patient).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewPatientRepo(mock).UpdateAllergies(context.Background(), patient, nil)
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncounterRepo_UpdatePhysicians(t *testing.T) {
	mock := newMock(t)
	repo := NewEncounterRepo(mock)
	encounter := uuid.New()
	a, b := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM encounter WHERE key = \\$1 FOR UPDATE").
		WithArgs(encounter).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(encounter))
	mock.ExpectQuery("SELECT physician_key, role FROM encounter_physician").
		WithArgs(encounter).
		WillReturnRows(pgxmock.NewRows([]string{"physician_key", "role"}).
			AddRow(a, "ATTENDING").
			AddRow(a, "ADMITTING"))
	mock.ExpectExec("DELETE FROM encounter_physician").
		WithArgs(encounter, a, "ATTENDING").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO encounter_physician").
		WithArgs(encounter, []uuid.UUID{b}, []string{"ATTENDING"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	summary, err := repo.UpdatePhysicians(context.Background(), encounter, []EncounterPhysician{
		{PhysicianKey: a, Role: RoleAdmitting},
		{PhysicianKey: b, Role: RoleAttending},
	})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Removed: 1}, summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncounterRepo_Discharge_Conflict(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	at := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE encounter SET status = \\$3").
		WithArgs(key, at, "DISCHARGED", "ADMITTED").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewEncounterRepo(mock).Discharge(context.Background(), key, at)
	assert.True(t, errors.Is(err, sqlerr.ErrConcurrency))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncounterRepo_Discharge_NotFound(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	at := time.Now().UTC()

	mock.ExpectQuery("UPDATE encounter SET status = \\$3").
		WithArgs(key, at, "DISCHARGED", "ADMITTED").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := NewEncounterRepo(mock).Discharge(context.Background(), key, at)
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}

func TestPhysicianRepo_Delete_NotFound(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectExec("DELETE FROM physician WHERE key = \\$1").
		WithArgs(key).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := NewPhysicianRepo(mock).Delete(context.Background(), key)
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}
