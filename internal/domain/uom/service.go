package uom

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/validation"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "uom").Logger()}
}

func normalizeRoles(rs []Role) ([]Role, error) {
	for i, r := range rs {
		if !r.Valid() {
			return nil, validation.From(validation.Field(fmt.Sprintf("roles[%d]", i), "must be one of: "+roles.String()))
		}
	}
	return reconcile.Diff(nil, rs).Added, nil
}

func normalize(u *UnitOfMeasure) error {
	u.Code = strings.ToUpper(strings.TrimSpace(u.Code))
	u.Description = strings.TrimSpace(u.Description)
	return validation.Struct(u)
}

func (s *Service) CreateUnitOfMeasure(ctx context.Context, u *UnitOfMeasure) error {
	u.Active = true
	if err := normalize(u); err != nil {
		return err
	}
	rs, err := normalizeRoles(u.Roles)
	if err != nil {
		return err
	}
	u.Roles = rs
	return s.repo.Create(ctx, u)
}

func (s *Service) GetUnitOfMeasure(ctx context.Context, key uuid.UUID) (*UnitOfMeasure, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) GetUnitOfMeasureByCode(ctx context.Context, code string) (*UnitOfMeasure, error) {
	return s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) ListUnitsOfMeasure(ctx context.Context, filter ListFilter) ([]*UnitOfMeasure, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, validation.From(validation.Field("role", "must be one of: "+roles.String()))
	}
	return s.repo.List(ctx, filter)
}

// UpdateUnitOfMeasure writes code, description and active. Roles keep their
// own update.
func (s *Service) UpdateUnitOfMeasure(ctx context.Context, u *UnitOfMeasure) error {
	if err := normalize(u); err != nil {
		return err
	}
	return s.repo.Update(ctx, u)
}

func (s *Service) DeleteUnitOfMeasure(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}

func (s *Service) UpdateUnitOfMeasureRoles(ctx context.Context, key uuid.UUID, rs []Role) (reconcile.Summary, error) {
	rs, err := normalizeRoles(rs)
	if err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.repo.UpdateRoles(ctx, key, rs)
	if err != nil {
		return summary, err
	}
	s.logger.Debug().
		Str("uom_key", key.String()).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Msg("reconciled unit of measure roles")
	return summary, nil
}
