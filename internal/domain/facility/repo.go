package facility

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

// Repository defines the persistence interface for facilities. Facility rows
// are versioned: Update and Delete close the current version.
type Repository interface {
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Facility, int, error)
	Get(ctx context.Context, key uuid.UUID) (*Facility, error)
	GetByCode(ctx context.Context, code string) (*Facility, error)
	Create(ctx context.Context, f *Facility) error
	Update(ctx context.Context, f *Facility) error
	Delete(ctx context.Context, key uuid.UUID, expectedVersion int) error
	History(ctx context.Context, key uuid.UUID) ([]*Facility, error)

	UpdateContacts(ctx context.Context, key uuid.UUID, contacts []Contact) (reconcile.Summary, error)
	UpdateNoticeTypes(ctx context.Context, key uuid.UUID, types []NoticeType) (reconcile.Summary, error)
	UpdateSheetConfigs(ctx context.Context, key uuid.UUID, configs []SheetConfig) (reconcile.Summary, error)
}
