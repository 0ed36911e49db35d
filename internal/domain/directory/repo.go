package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type DomainRepository interface {
	List(ctx context.Context) ([]*Domain, error)
	Get(ctx context.Context, key uuid.UUID) (*Domain, error)
	GetByName(ctx context.Context, name string) (*Domain, error)
	Create(ctx context.Context, d *Domain) error
	Update(ctx context.Context, d *Domain) error
	Delete(ctx context.Context, key uuid.UUID) error
}

type GroupRepository interface {
	List(ctx context.Context, domainKey uuid.UUID) ([]*Group, error)
	GetByKeys(ctx context.Context, keys []uuid.UUID) ([]*Group, error)
	Create(ctx context.Context, g *Group) error
	Delete(ctx context.Context, key uuid.UUID) error
	ListForUser(ctx context.Context, userKey uuid.UUID) ([]*Group, error)
	UpdateUserGroups(ctx context.Context, userKey uuid.UUID, groupKeys []uuid.UUID) (reconcile.Summary, error)
}
