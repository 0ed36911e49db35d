package uom

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]*UnitOfMeasure, error)
	Get(ctx context.Context, key uuid.UUID) (*UnitOfMeasure, error)
	GetByCode(ctx context.Context, code string) (*UnitOfMeasure, error)
	Create(ctx context.Context, u *UnitOfMeasure) error
	Update(ctx context.Context, u *UnitOfMeasure) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdateRoles(ctx context.Context, key uuid.UUID, roles []Role) (reconcile.Summary, error)
}
