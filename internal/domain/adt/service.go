package adt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/validation"
)

type Service struct {
	patients   PatientRepository
	encounters EncounterRepository
	physicians PhysicianRepository
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(patients PatientRepository, encounters EncounterRepository, physicians PhysicianRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients:   patients,
		encounters: encounters,
		physicians: physicians,
		logger:     logger.With().Str("component", "adt").Logger(),
		now:        time.Now,
	}
}

// -- Patient --

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func (s *Service) normalizePatient(p *Patient) error {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.FamilyName = strings.TrimSpace(p.FamilyName)
	p.GivenName = trimPtr(p.GivenName)
	p.MiddleName = trimPtr(p.MiddleName)
	if p.IDType == "" {
		p.IDType = IDTypeMRN
	}
	if p.Gender == "" {
		p.Gender = GenderUnknown
	}
	if err := validation.Struct(p); err != nil {
		return err
	}
	if !p.IDType.Valid() {
		return validation.From(validation.Field("id_type", "must be one of: "+idTypes.String()))
	}
	if !p.Gender.Valid() {
		return validation.From(validation.Field("gender", "must be one of: "+genders.String()))
	}
	if p.BirthDate != nil && p.BirthDate.After(s.now()) {
		return validation.From(validation.Field("birth_date", "must not be in the future"))
	}
	return nil
}

// normalizeAllergies defaults severity and rejects a code listed twice.
func normalizeAllergies(allergies []Allergy) error {
	seen := make(map[string]bool, len(allergies))
	for i := range allergies {
		a := &allergies[i]
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		a.Description = strings.TrimSpace(a.Description)
		if a.Severity == "" {
			a.Severity = SeverityUnknown
		}
		if err := validation.Struct(a); err != nil {
			return err
		}
		if !a.Severity.Valid() {
			return validation.From(validation.Field(fmt.Sprintf("allergies[%d].severity", i),
				"must be one of: "+severities.String()))
		}
		if seen[a.Code] {
			return validation.From(validation.Field(fmt.Sprintf("allergies[%d].code", i), "is listed more than once"))
		}
		seen[a.Code] = true
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.normalizePatient(p); err != nil {
		return err
	}
	if err := normalizeAllergies(p.Allergies); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, key uuid.UUID) (*Patient, error) {
	return s.patients.Get(ctx, key)
}

func (s *Service) GetPatientsByKeys(ctx context.Context, keys []uuid.UUID) ([]*Patient, error) {
	return s.patients.GetByKeys(ctx, reconcile.Diff(nil, keys).Added)
}

func (s *Service) SearchPatients(ctx context.Context, search PatientSearch, limit, offset int) ([]*Patient, int, error) {
	search.Name = strings.TrimSpace(search.Name)
	search.ExternalID = strings.TrimSpace(search.ExternalID)
	return s.patients.Search(ctx, search, limit, offset)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := s.normalizePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, key uuid.UUID) error {
	return s.patients.Delete(ctx, key)
}

func (s *Service) UpdatePatientAllergies(ctx context.Context, patientKey uuid.UUID, allergies []Allergy) (reconcile.Summary, error) {
	if err := normalizeAllergies(allergies); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.patients.UpdateAllergies(ctx, patientKey, allergies)
	if err != nil {
		return summary, err
	}
	s.logReconcile("patient_key", patientKey, "allergies", summary)
	return summary, nil
}

// -- Encounter --

func (s *Service) validateEncounter(e *Encounter) error {
	e.VisitID = strings.TrimSpace(e.VisitID)
	e.Bed = trimPtr(e.Bed)
	if e.Status == "" {
		e.Status = StatusPreadmit
	}
	if err := validation.Struct(e); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return validation.From(validation.Field("status", "must be one of: "+encounterStatuses.String()))
	}
	if e.Status == StatusAdmitted && e.AdmitUTC == nil {
		return validation.From(validation.Field("admit_utc", "is required for an admitted encounter"))
	}
	if e.Status == StatusDischarged && e.DischargeUTC == nil {
		return validation.From(validation.Field("discharge_utc", "is required for a discharged encounter"))
	}
	if e.AdmitUTC != nil && e.DischargeUTC != nil && e.DischargeUTC.Before(*e.AdmitUTC) {
		return validation.From(validation.Field("discharge_utc", "must not be before admit_utc"))
	}
	if e.RoomKey != nil && e.UnitKey == nil {
		return validation.From(validation.Field("unit_key", "is required when a room is given"))
	}
	return validatePhysicians(e.Physicians)
}

// validatePhysicians allows at most one attending physician.
func validatePhysicians(physicians []EncounterPhysician) error {
	attending := 0
	for i, ep := range physicians {
		if ep.PhysicianKey == uuid.Nil {
			return validation.From(validation.Field(fmt.Sprintf("physicians[%d].physician_key", i), "is required"))
		}
		if !ep.Role.Valid() {
			return validation.From(validation.Field(fmt.Sprintf("physicians[%d].role", i),
				"must be one of: "+physicianRoles.String()))
		}
		if ep.Role == RoleAttending {
			attending++
		}
	}
	if attending > 1 {
		return validation.From(validation.Field("physicians", "only one attending physician is allowed"))
	}
	return nil
}

func (s *Service) CreateEncounter(ctx context.Context, e *Encounter) error {
	if err := s.validateEncounter(e); err != nil {
		return err
	}
	patient, err := s.patients.Get(ctx, e.PatientKey)
	if err != nil {
		return err
	}
	if patient.FacilityKey != e.FacilityKey {
		return validation.From(validation.Field("facility_key", "must match the patient's facility"))
	}
	e.Physicians = reconcile.Diff(nil, e.Physicians).Added
	return s.encounters.Create(ctx, e)
}

func (s *Service) GetEncounter(ctx context.Context, key uuid.UUID) (*Encounter, error) {
	return s.encounters.Get(ctx, key)
}

func (s *Service) ListEncountersByPatient(ctx context.Context, patientKey uuid.UUID) ([]*Encounter, error) {
	return s.encounters.ListByPatient(ctx, patientKey)
}

func (s *Service) UpdateEncounter(ctx context.Context, e *Encounter) error {
	cur, err := s.encounters.Get(ctx, e.Key)
	if err != nil {
		return err
	}
	e.PatientKey, e.FacilityKey = cur.PatientKey, cur.FacilityKey
	if err := s.validateEncounter(e); err != nil {
		return err
	}
	return s.encounters.Update(ctx, e)
}

func (s *Service) DeleteEncounter(ctx context.Context, key uuid.UUID) error {
	return s.encounters.Delete(ctx, key)
}

func (s *Service) UpdateEncounterPhysicians(ctx context.Context, encounterKey uuid.UUID, physicians []EncounterPhysician) (reconcile.Summary, error) {
	if err := validatePhysicians(physicians); err != nil {
		return reconcile.Summary{}, err
	}
	cur, err := s.encounters.Get(ctx, encounterKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	if cur.Status.Closed() {
		return reconcile.Summary{}, errs.NewConflictError(
			fmt.Sprintf("Encounter is %s; physicians can no longer change", strings.ToLower(string(cur.Status))), nil)
	}
	summary, err := s.encounters.UpdatePhysicians(ctx, encounterKey, physicians)
	if err != nil {
		return summary, err
	}
	s.logReconcile("encounter_key", encounterKey, "physicians", summary)
	return summary, nil
}

// DischargeEncounter discharges an admitted encounter at the given time, or
// now when at is nil.
func (s *Service) DischargeEncounter(ctx context.Context, key uuid.UUID, at *time.Time) (*Encounter, error) {
	cur, err := s.encounters.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusAdmitted {
		return nil, errs.NewConflictError(
			fmt.Sprintf("Only admitted encounters can be discharged; this one is %s", strings.ToLower(string(cur.Status))), nil)
	}
	when := s.now().UTC()
	if at != nil {
		when = at.UTC()
	}
	if cur.AdmitUTC != nil && when.Before(*cur.AdmitUTC) {
		return nil, validation.From(validation.Field("discharge_utc", "must not be before admit_utc"))
	}
	if err := s.encounters.Discharge(ctx, key, when); err != nil {
		return nil, err
	}
	cur.Status = StatusDischarged
	cur.DischargeUTC = &when
	s.logger.Info().Str("encounter_key", key.String()).Time("discharge_utc", when).Msg("encounter discharged")
	return cur, nil
}

// -- Physician --

func normalizePhysician(p *Physician) error {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.FullName = strings.TrimSpace(p.FullName)
	return validation.Struct(p)
}

func (s *Service) CreatePhysician(ctx context.Context, p *Physician) error {
	p.Active = true
	if err := normalizePhysician(p); err != nil {
		return err
	}
	return s.physicians.Create(ctx, p)
}

func (s *Service) GetPhysician(ctx context.Context, key uuid.UUID) (*Physician, error) {
	return s.physicians.Get(ctx, key)
}

func (s *Service) GetPhysicianByExternalID(ctx context.Context, externalID string) (*Physician, error) {
	return s.physicians.GetByExternalID(ctx, strings.TrimSpace(externalID))
}

func (s *Service) ListPhysicians(ctx context.Context, activeOnly bool, limit, offset int) ([]*Physician, int, error) {
	return s.physicians.List(ctx, activeOnly, limit, offset)
}

func (s *Service) UpdatePhysician(ctx context.Context, p *Physician) error {
	if err := normalizePhysician(p); err != nil {
		return err
	}
	return s.physicians.Update(ctx, p)
}

func (s *Service) DeletePhysician(ctx context.Context, key uuid.UUID) error {
	return s.physicians.Delete(ctx, key)
}

func (s *Service) logReconcile(keyName string, key uuid.UUID, collection string, summary reconcile.Summary) {
	s.logger.Debug().
		Str(keyName, key.String()).
		Str("collection", collection).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("reconciled adt children")
}
