package pharmacyorder

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

// Changes counts the child rows an order update touched, per collection.
type Changes struct {
	Routes       reconcile.Summary `json:"routes"`
	Components   reconcile.Summary `json:"components"`
	Timings      reconcile.Summary `json:"timings"`
	Instructions reconcile.Summary `json:"instructions"`
}

type Repository interface {
	Get(ctx context.Context, key uuid.UUID) (*Order, error)
	GetByOrderID(ctx context.Context, facilityKey uuid.UUID, orderID string) (*Order, error)
	ListByEncounter(ctx context.Context, encounterKey uuid.UUID) ([]*Order, error)
	ListByEncounters(ctx context.Context, encounterKeys []uuid.UUID) ([]*Order, error)
	Create(ctx context.Context, o *Order) error
	// Update rewrites the header and reconciles every child collection.
	Update(ctx context.Context, o *Order) (Changes, error)
	// UpdateStatus moves the order from one status to another. It fails with
	// a concurrency error when the stored status is no longer from.
	UpdateStatus(ctx context.Context, key uuid.UUID, from, to Status) error
	Delete(ctx context.Context, key uuid.UUID) error
}
