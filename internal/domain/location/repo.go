package location

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type UnitRepository interface {
	List(ctx context.Context, filter UnitFilter, limit, offset int) ([]*Unit, int, error)
	Get(ctx context.Context, key uuid.UUID) (*Unit, error)
	Create(ctx context.Context, u *Unit) error
	Update(ctx context.Context, u *Unit) error
	Delete(ctx context.Context, key uuid.UUID, expectedVersion int) error
	UpdateRooms(ctx context.Context, unitKey uuid.UUID, rooms []Room) (reconcile.Summary, error)
	UpdateAreas(ctx context.Context, unitKey uuid.UUID, areaKeys []uuid.UUID) (reconcile.Summary, error)
}

type AreaRepository interface {
	List(ctx context.Context, facilityKey uuid.UUID) ([]*Area, error)
	Get(ctx context.Context, key uuid.UUID) (*Area, error)
	Create(ctx context.Context, a *Area) error
	Update(ctx context.Context, a *Area) error
	Delete(ctx context.Context, key uuid.UUID) error
}
