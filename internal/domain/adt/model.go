package adt

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

// -- Internal codes --

type IDType string

const (
	IDTypeMRN     IDType = "MRN"
	IDTypeAccount IDType = "ACCOUNT"
	IDTypeSSN     IDType = "SSN"
	IDTypeOther   IDType = "OTHER"
)

var idTypes = codes.New("patient id type", IDTypeMRN, IDTypeAccount, IDTypeSSN, IDTypeOther)

func (t IDType) Valid() bool { return idTypes.Valid(t) }
func (t *IDType) Scan(src any) error { return idTypes.Scan(t, src) }
func ParseIDType(s string) (IDType, error) { return idTypes.Parse(s) }

type Gender string

const (
	GenderFemale  Gender = "F"
	GenderMale    Gender = "M"
	GenderUnknown Gender = "U"
	GenderOther   Gender = "O"
)

var genders = codes.New("gender", GenderFemale, GenderMale, GenderUnknown, GenderOther)

func (g Gender) Valid() bool { return genders.Valid(g) }
func (g *Gender) Scan(src any) error { return genders.Scan(g, src) }
func ParseGender(s string) (Gender, error) { return genders.Parse(s) }

type Severity string

const (
	SeverityMild     Severity = "MILD"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
	SeverityUnknown  Severity = "UNKNOWN"
)

var severities = codes.New("allergy severity", SeverityMild, SeverityModerate, SeveritySevere, SeverityUnknown)

func (s Severity) Valid() bool { return severities.Valid(s) }
func (s *Severity) Scan(src any) error { return severities.Scan(s, src) }

type EncounterStatus string

const (
	StatusPreadmit   EncounterStatus = "PREADMIT"
	StatusAdmitted   EncounterStatus = "ADMITTED"
	StatusDischarged EncounterStatus = "DISCHARGED"
	StatusCancelled  EncounterStatus = "CANCELLED"
)

var encounterStatuses = codes.New("encounter status", StatusPreadmit, StatusAdmitted, StatusDischarged, StatusCancelled)

func (s EncounterStatus) Valid() bool { return encounterStatuses.Valid(s) }
func (s *EncounterStatus) Scan(src any) error { return encounterStatuses.Scan(s, src) }

// Closed reports whether the encounter no longer accepts changes.
func (s EncounterStatus) Closed() bool {
	return s == StatusDischarged || s == StatusCancelled
}

type PhysicianRole string

const (
	RoleAttending  PhysicianRole = "ATTENDING"
	RoleAdmitting  PhysicianRole = "ADMITTING"
	RoleConsulting PhysicianRole = "CONSULTING"
	RoleReferring  PhysicianRole = "REFERRING"
)

var physicianRoles = codes.New("physician role", RoleAttending, RoleAdmitting, RoleConsulting, RoleReferring)

func (r PhysicianRole) Valid() bool { return physicianRoles.Valid(r) }
func (r *PhysicianRole) Scan(src any) error { return physicianRoles.Scan(r, src) }

// -- Patient --

type Patient struct {
	Key         uuid.UUID  `json:"key"`
	FacilityKey uuid.UUID  `json:"facility_key" validate:"required"`
	ExternalID  string     `json:"external_id" validate:"required,max=40"`
	IDType      IDType     `json:"id_type"`
	FamilyName  string     `json:"family_name" validate:"required,max=60"`
	GivenName   *string    `json:"given_name,omitempty" validate:"omitempty,max=60"`
	MiddleName  *string    `json:"middle_name,omitempty" validate:"omitempty,max=60"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Gender      Gender     `json:"gender"`
	Allergies   []Allergy  `json:"allergies,omitempty" validate:"dive"`
}

type Allergy struct {
	Key         uuid.UUID `json:"key"`
	PatientKey  uuid.UUID `json:"patient_key"`
	Code        string    `json:"code" validate:"required,max=40"`
	Description string    `json:"description" validate:"required,max=200"`
	Severity    Severity  `json:"severity"`
}

type PatientSearch struct {
	FacilityKey uuid.UUID
	Name        string
	ExternalID  string
}

// -- Encounter --

type Encounter struct {
	Key          uuid.UUID            `json:"key"`
	PatientKey   uuid.UUID            `json:"patient_key" validate:"required"`
	FacilityKey  uuid.UUID            `json:"facility_key" validate:"required"`
	VisitID      string               `json:"visit_id" validate:"required,max=40"`
	Status       EncounterStatus      `json:"status"`
	AdmitUTC     *time.Time           `json:"admit_utc,omitempty"`
	DischargeUTC *time.Time           `json:"discharge_utc,omitempty"`
	UnitKey      *uuid.UUID           `json:"unit_key,omitempty"`
	RoomKey      *uuid.UUID           `json:"room_key,omitempty"`
	Bed          *string              `json:"bed,omitempty" validate:"omitempty,max=10"`
	Physicians   []EncounterPhysician `json:"physicians,omitempty"`
}

// EncounterPhysician is one physician acting in one role on an encounter.
// The same physician may hold several roles.
type EncounterPhysician struct {
	PhysicianKey uuid.UUID     `json:"physician_key"`
	Role         PhysicianRole `json:"role"`
}

// -- Physician --

type Physician struct {
	Key        uuid.UUID `json:"key"`
	ExternalID string    `json:"external_id" validate:"required,max=40"`
	FullName   string    `json:"full_name" validate:"required,max=120"`
	Active     bool      `json:"active"`
}
