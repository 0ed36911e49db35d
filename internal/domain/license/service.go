package license

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/validation"
)

// defaultExpiryWindow is how far ahead ListExpiring looks when no date is given.
const defaultExpiryWindow = 30 * 24 * time.Hour

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "license").Logger(),
		now:    time.Now,
	}
}

// normalizeLicense parses the schedules, drops repeats and keeps them in
// schedule order. Expiration dates are truncated to the day.
func normalizeLicense(l *License) error {
	l.LicenseNumber = strings.ToUpper(strings.TrimSpace(l.LicenseNumber))
	l.Name = strings.TrimSpace(l.Name)
	if err := validation.Struct(l); err != nil {
		return err
	}
	parsed := make([]Schedule, 0, len(l.Schedules))
	for i, raw := range l.Schedules {
		s, err := schedules.Parse(string(raw))
		if err != nil {
			return validation.From(validation.Field(fmt.Sprintf("schedules[%d]", i),
				"must be one of: "+schedules.String()))
		}
		parsed = append(parsed, s)
	}
	order := schedules.Values()
	l.Schedules = reconcile.Diff(nil, parsed).Added
	slices.SortFunc(l.Schedules, func(a, b Schedule) int {
		return slices.Index(order, a) - slices.Index(order, b)
	})
	if l.ExpirationDate != nil {
		d := time.Date(l.ExpirationDate.Year(), l.ExpirationDate.Month(), l.ExpirationDate.Day(), 0, 0, 0, 0, time.UTC)
		l.ExpirationDate = &d
	}
	return nil
}

func (s *Service) CreateLicense(ctx context.Context, l *License) error {
	l.Active = true
	if err := normalizeLicense(l); err != nil {
		return err
	}
	return s.repo.Create(ctx, l)
}

func (s *Service) GetLicense(ctx context.Context, key uuid.UUID) (*License, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) ListByFacility(ctx context.Context, facilityKey uuid.UUID) ([]*License, error) {
	return s.repo.ListByFacility(ctx, facilityKey)
}

// ListExpiring returns active licenses expiring before the given date, or
// within the next 30 days when before is nil.
func (s *Service) ListExpiring(ctx context.Context, before *time.Time) ([]*License, error) {
	cutoff := s.now().UTC().Add(defaultExpiryWindow)
	if before != nil {
		cutoff = *before
	}
	licenses, err := s.repo.ListExpiring(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(licenses) > 0 {
		s.logger.Debug().Int("count", len(licenses)).Time("before", cutoff).Msg("expiring licenses")
	}
	return licenses, nil
}

func (s *Service) UpdateLicense(ctx context.Context, l *License) error {
	if l.FacilityKey == uuid.Nil {
		cur, err := s.repo.Get(ctx, l.Key)
		if err != nil {
			return err
		}
		l.FacilityKey = cur.FacilityKey
	}
	if err := normalizeLicense(l); err != nil {
		return err
	}
	return s.repo.Update(ctx, l)
}

func (s *Service) DeleteLicense(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}
