package adt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type PatientRepository interface {
	Search(ctx context.Context, search PatientSearch, limit, offset int) ([]*Patient, int, error)
	Get(ctx context.Context, key uuid.UUID) (*Patient, error)
	GetByKeys(ctx context.Context, keys []uuid.UUID) ([]*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdateAllergies(ctx context.Context, patientKey uuid.UUID, allergies []Allergy) (reconcile.Summary, error)
}

type EncounterRepository interface {
	ListByPatient(ctx context.Context, patientKey uuid.UUID) ([]*Encounter, error)
	Get(ctx context.Context, key uuid.UUID) (*Encounter, error)
	Create(ctx context.Context, e *Encounter) error
	Update(ctx context.Context, e *Encounter) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdatePhysicians(ctx context.Context, encounterKey uuid.UUID, physicians []EncounterPhysician) (reconcile.Summary, error)
	Discharge(ctx context.Context, key uuid.UUID, at time.Time) error
}

type PhysicianRepository interface {
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Physician, int, error)
	Get(ctx context.Context, key uuid.UUID) (*Physician, error)
	GetByExternalID(ctx context.Context, externalID string) (*Physician, error)
	Create(ctx context.Context, p *Physician) error
	Update(ctx context.Context, p *Physician) error
	Delete(ctx context.Context, key uuid.UUID) error
}
