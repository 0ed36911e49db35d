package repeatpattern

import (
	"context"
	"fmt"
	"slices"
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
	return &Service{repo: repo, logger: logger.With().Str("component", "repeatpattern").Logger()}
}

func normalize(p *Pattern) {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Description = strings.TrimSpace(p.Description)
	for i := range p.ScheduledTimes {
		p.ScheduledTimes[i] = strings.TrimSpace(p.ScheduledTimes[i])
	}
	slices.Sort(p.ScheduledTimes)
	p.ScheduledTimes = slices.Compact(p.ScheduledTimes)
}

func validate(p *Pattern) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return validation.From(validation.Field("type", "must be one of: "+types.String()))
	}
	n := len(p.ScheduledTimes)
	switch p.Type {
	case TypeStandard:
		if n == 0 {
			return validation.From(validation.Field("scheduled_times", "standard patterns need at least one time"))
		}
	case TypeOnce:
		if n > 1 {
			return validation.From(validation.Field("scheduled_times", "a one-time pattern has at most one time"))
		}
	case TypePRN, TypeContinuous:
		if n > 0 {
			return validation.From(validation.Field("scheduled_times",
				fmt.Sprintf("%s patterns have no scheduled times", strings.ToLower(string(p.Type)))))
		}
	}
	return nil
}

func (s *Service) CreatePattern(ctx context.Context, p *Pattern) error {
	normalize(p)
	p.Active = true
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPattern(ctx context.Context, key uuid.UUID) (*Pattern, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) ListByFacility(ctx context.Context, facilityKey uuid.UUID, limit, offset int) ([]*Pattern, int, error) {
	return s.repo.List(ctx, facilityKey, limit, offset)
}

func (s *Service) UpdatePattern(ctx context.Context, p *Pattern) error {
	normalize(p)
	if p.Version < 1 {
		return validation.From(validation.Field("version", "is required"))
	}
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePattern(ctx context.Context, key uuid.UUID, expectedVersion int) error {
	return s.repo.Delete(ctx, key, expectedVersion)
}

func (s *Service) ListForUnit(ctx context.Context, unitKey uuid.UUID) ([]*Pattern, error) {
	return s.repo.ListForUnit(ctx, unitKey)
}

func (s *Service) GetLocationRepeatPatterns(ctx context.Context, unitKey uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.UnitPatternKeys(ctx, unitKey)
}

func (s *Service) UpdateLocationRepeatPatterns(ctx context.Context, unitKey uuid.UUID, patternKeys []uuid.UUID) (reconcile.Summary, error) {
	for i, k := range patternKeys {
		if k == uuid.Nil {
			return reconcile.Summary{}, validation.From(validation.Field(fmt.Sprintf("pattern_keys[%d]", i), "is required"))
		}
	}
	summary, err := s.repo.UpdateUnitPatterns(ctx, unitKey, patternKeys)
	if err != nil {
		return summary, err
	}
	s.logger.Debug().
		Str("unit_key", unitKey.String()).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Msg("reconciled unit repeat patterns")
	return summary, nil
}
