package dispensingsystem

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type Repository interface {
	ListByFacility(ctx context.Context, facilityKey uuid.UUID) ([]*System, error)
	Get(ctx context.Context, key uuid.UUID) (*System, error)
	Create(ctx context.Context, s *System) error
	Update(ctx context.Context, s *System) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdateContacts(ctx context.Context, systemKey uuid.UUID, contacts []Contact) (reconcile.Summary, error)
}
