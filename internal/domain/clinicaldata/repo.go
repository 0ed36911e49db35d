package clinicaldata

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/reconcile"
)

type SubjectRepository interface {
	List(ctx context.Context, facilityKey uuid.UUID, limit, offset int) ([]*Subject, int, error)
	Get(ctx context.Context, key uuid.UUID) (*Subject, error)
	Create(ctx context.Context, s *Subject) error
	Update(ctx context.Context, s *Subject) error
	Delete(ctx context.Context, key uuid.UUID) error
	UpdateResponses(ctx context.Context, subjectKey uuid.UUID, responses []Response) (reconcile.Summary, error)
	UpdateUserTypes(ctx context.Context, subjectKey uuid.UUID, userTypeKeys []uuid.UUID) (reconcile.Summary, error)
}

type UserTypeRepository interface {
	List(ctx context.Context) ([]*UserType, error)
	Create(ctx context.Context, u *UserType) error
	Delete(ctx context.Context, key uuid.UUID) error
}
