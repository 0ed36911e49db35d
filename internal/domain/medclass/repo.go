package medclass

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type Repository interface {
	List(ctx context.Context) ([]*Group, error)
	Get(ctx context.Context, key uuid.UUID) (*Group, error)
	GetByCode(ctx context.Context, code string) (*Group, error)
	Create(ctx context.Context, g *Group) error
	Update(ctx context.Context, g *Group) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdateClassCodes(ctx context.Context, groupKey uuid.UUID, classCodes []string) (reconcile.Summary, error)
}
