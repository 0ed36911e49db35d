package license

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	ListByFacility(ctx context.Context, facilityKey uuid.UUID) ([]*License, error)
	// ListExpiring returns active licenses whose expiration date falls
	// before the given date, soonest first.
	ListExpiring(ctx context.Context, before time.Time) ([]*License, error)
	Get(ctx context.Context, key uuid.UUID) (*License, error)
	Create(ctx context.Context, l *License) error
	Update(ctx context.Context, l *License) error
	Delete(ctx context.Context, key uuid.UUID) error
}
