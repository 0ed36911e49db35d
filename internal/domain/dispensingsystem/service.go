package dispensingsystem

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
	return &Service{repo: repo, logger: logger.With().Str("component", "dispensingsystem").Logger()}
}

func normalizeSystem(s *System) error {
	s.Name = strings.TrimSpace(s.Name)
	s.ServerAddress = strings.ToLower(strings.TrimSpace(s.ServerAddress))
	return validation.Struct(s)
}

// normalizeContacts rejects two contacts with the same email address.
func normalizeContacts(contacts []Contact) error {
	emails := make(map[string]bool, len(contacts))
	for i := range contacts {
		c := &contacts[i]
		c.FullName = strings.TrimSpace(c.FullName)
		if err := validation.Struct(c); err != nil {
			return err
		}
		if c.Email == nil {
			continue
		}
		e := strings.ToLower(*c.Email)
		if emails[e] {
			return validation.From(validation.Field(fmt.Sprintf("contacts[%d].email", i), "is listed more than once"))
		}
		emails[e] = true
	}
	return nil
}

func (s *Service) CreateSystem(ctx context.Context, sys *System) error {
	if err := normalizeSystem(sys); err != nil {
		return err
	}
	if err := normalizeContacts(sys.Contacts); err != nil {
		return err
	}
	return s.repo.Create(ctx, sys)
}

func (s *Service) GetSystem(ctx context.Context, key uuid.UUID) (*System, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) ListByFacility(ctx context.Context, facilityKey uuid.UUID) ([]*System, error) {
	return s.repo.ListByFacility(ctx, facilityKey)
}

// UpdateSystem writes the settings. The facility cannot change and contacts
// keep their own update.
func (s *Service) UpdateSystem(ctx context.Context, sys *System) error {
	if sys.FacilityKey == uuid.Nil {
		cur, err := s.repo.Get(ctx, sys.Key)
		if err != nil {
			return err
		}
		sys.FacilityKey = cur.FacilityKey
	}
	sys.Contacts = nil
	if err := normalizeSystem(sys); err != nil {
		return err
	}
	return s.repo.Update(ctx, sys)
}

func (s *Service) DeleteSystem(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}

func (s *Service) UpdateSystemContacts(ctx context.Context, systemKey uuid.UUID, contacts []Contact) (reconcile.Summary, error) {
	if err := normalizeContacts(contacts); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.repo.UpdateContacts(ctx, systemKey, contacts)
	if err != nil {
		return summary, err
	}
	s.logger.Debug().
		Str("system_key", systemKey.String()).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("reconciled system contacts")
	return summary, nil
}
