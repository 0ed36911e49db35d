package invoicetype

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	List(ctx context.Context, activeOnly bool) ([]*InvoiceType, error)
	Get(ctx context.Context, key uuid.UUID) (*InvoiceType, error)
	Create(ctx context.Context, it *InvoiceType) error
	Update(ctx context.Context, it *InvoiceType) error
	Delete(ctx context.Context, key uuid.UUID) error
}
