package codemap

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	List(ctx context.Context, category Category, system string) ([]*Mapping, error)
	Resolve(ctx context.Context, system string, category Category, externalCode string) (*Mapping, error)
	// Upsert inserts m or overwrites the mapping with the same external
	// identity. It reports whether a row was inserted.
	Upsert(ctx context.Context, m *Mapping) (bool, error)
	UpsertAll(ctx context.Context, mappings []Mapping) (ImportResult, error)
	Delete(ctx context.Context, key uuid.UUID) error
}
