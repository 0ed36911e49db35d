package repeatpattern

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type Repository interface {
	List(ctx context.Context, facilityKey uuid.UUID, limit, offset int) ([]*Pattern, int, error)
	Get(ctx context.Context, key uuid.UUID) (*Pattern, error)
	Create(ctx context.Context, p *Pattern) error
	Update(ctx context.Context, p *Pattern) error
	Delete(ctx context.Context, key uuid.UUID, expectedVersion int) error
	ListForUnit(ctx context.Context, unitKey uuid.UUID) ([]*Pattern, error)
	UnitPatternKeys(ctx context.Context, unitKey uuid.UUID) ([]uuid.UUID, error)
	UpdateUnitPatterns(ctx context.Context, unitKey uuid.UUID, patternKeys []uuid.UUID) (reconcile.Summary, error)
}
