package kit

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type Repository interface {
	ListByFacility(ctx context.Context, facilityKey uuid.UUID, activeOnly bool) ([]*Kit, error)
	Get(ctx context.Context, key uuid.UUID) (*Kit, error)
	Create(ctx context.Context, k *Kit) error
	Update(ctx context.Context, k *Kit) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdateItems(ctx context.Context, kitKey uuid.UUID, items []Item) (reconcile.Summary, error)
}
