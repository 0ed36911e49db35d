package medclass

import (
	"context"
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
	return &Service{repo: repo, logger: logger.With().Str("component", "medclass").Logger()}
}

type classList struct {
	ClassCodes []string `json:"class_codes" validate:"dive,required,max=20"`
}

// normalizeCodes upper-cases class codes and drops repeats.
func normalizeCodes(codes []string) []string {
	for i := range codes {
		codes[i] = strings.ToUpper(strings.TrimSpace(codes[i]))
	}
	return reconcile.Diff(nil, codes).Added
}

func (s *Service) CreateGroup(ctx context.Context, g *Group) error {
	g.Code = strings.ToUpper(strings.TrimSpace(g.Code))
	g.Description = strings.TrimSpace(g.Description)
	g.ClassCodes = normalizeCodes(g.ClassCodes)
	if err := validation.Struct(g); err != nil {
		return err
	}
	return s.repo.Create(ctx, g)
}

func (s *Service) GetGroup(ctx context.Context, key uuid.UUID) (*Group, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) GetGroupByCode(ctx context.Context, code string) (*Group, error) {
	return s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) ListGroups(ctx context.Context) ([]*Group, error) {
	return s.repo.List(ctx)
}

// UpdateGroup rewrites code and description. Members keep their own update.
func (s *Service) UpdateGroup(ctx context.Context, g *Group) error {
	g.Code = strings.ToUpper(strings.TrimSpace(g.Code))
	g.Description = strings.TrimSpace(g.Description)
	g.ClassCodes = nil
	if err := validation.Struct(g); err != nil {
		return err
	}
	return s.repo.Update(ctx, g)
}

func (s *Service) DeleteGroup(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}

func (s *Service) UpdateGroupMedClasses(ctx context.Context, groupKey uuid.UUID, classCodes []string) (reconcile.Summary, error) {
	list := classList{ClassCodes: normalizeCodes(classCodes)}
	if err := validation.Struct(&list); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.repo.UpdateClassCodes(ctx, groupKey, list.ClassCodes)
	if err != nil {
		return summary, err
	}
	s.logger.Debug().
		Str("group_key", groupKey.String()).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Msg("reconciled med classes")
	return summary, nil
}
