package directory

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
	domains DomainRepository
	groups  GroupRepository
	logger  zerolog.Logger
}

func NewService(domains DomainRepository, groups GroupRepository, logger zerolog.Logger) *Service {
	return &Service{domains: domains, groups: groups, logger: logger.With().Str("component", "directory").Logger()}
}

// -- Domain --

func normalizeDomain(d *Domain) {
	d.FullyQualifiedName = strings.ToLower(strings.TrimSpace(d.FullyQualifiedName))
	if d.ShortName != nil {
		short := strings.ToUpper(strings.TrimSpace(*d.ShortName))
		d.ShortName = &short
	}
}

func validateDomain(d *Domain) error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	if d.ScheduledSyncEnabled && d.SyncIntervalMinutes < MinSyncIntervalMinutes {
		return validation.From(validation.Field("sync_interval_minutes",
			fmt.Sprintf("must be at least %d when scheduled sync is enabled", MinSyncIntervalMinutes)))
	}
	return nil
}

func (s *Service) CreateDomain(ctx context.Context, d *Domain) error {
	normalizeDomain(d)
	if err := validateDomain(d); err != nil {
		return err
	}
	return s.domains.Create(ctx, d)
}

func (s *Service) GetDomain(ctx context.Context, key uuid.UUID) (*Domain, error) {
	return s.domains.Get(ctx, key)
}

func (s *Service) GetDomainByName(ctx context.Context, name string) (*Domain, error) {
	return s.domains.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) ListDomains(ctx context.Context) ([]*Domain, error) {
	return s.domains.List(ctx)
}

func (s *Service) UpdateDomain(ctx context.Context, d *Domain) error {
	normalizeDomain(d)
	if d.Version < 1 {
		return validation.From(validation.Field("version", "is required"))
	}
	if err := validateDomain(d); err != nil {
		return err
	}
	return s.domains.Update(ctx, d)
}

func (s *Service) DeleteDomain(ctx context.Context, key uuid.UUID) error {
	if err := s.domains.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info().Str("domain_key", key.String()).Msg("deleted directory domain with its groups")
	return nil
}

// -- Group --

func (s *Service) ListGroups(ctx context.Context, domainKey uuid.UUID) ([]*Group, error) {
	return s.groups.List(ctx, domainKey)
}

func (s *Service) GetGroupsByKeys(ctx context.Context, keys []uuid.UUID) ([]*Group, error) {
	return s.groups.GetByKeys(ctx, reconcile.Diff(nil, keys).Added)
}

func (s *Service) CreateGroup(ctx context.Context, g *Group) error {
	g.Name = strings.TrimSpace(g.Name)
	g.SecurityIdentifier = strings.ToUpper(strings.TrimSpace(g.SecurityIdentifier))
	if err := validation.Struct(g); err != nil {
		return err
	}
	if !strings.HasPrefix(g.SecurityIdentifier, "S-1-") {
		return validation.From(validation.Field("security_identifier", "must be a Windows SID (S-1-...)"))
	}
	if _, err := s.domains.Get(ctx, g.DomainKey); err != nil {
		return err
	}
	return s.groups.Create(ctx, g)
}

func (s *Service) DeleteGroup(ctx context.Context, key uuid.UUID) error {
	return s.groups.Delete(ctx, key)
}

// -- User membership --

func (s *Service) GetUserDirectoryGroups(ctx context.Context, userKey uuid.UUID) ([]*Group, error) {
	return s.groups.ListForUser(ctx, userKey)
}

func (s *Service) UpdateUserDirectoryGroups(ctx context.Context, userKey uuid.UUID, groupKeys []uuid.UUID) (reconcile.Summary, error) {
	if userKey == uuid.Nil {
		return reconcile.Summary{}, validation.From(validation.Field("user_key", "is required"))
	}
	summary, err := s.groups.UpdateUserGroups(ctx, userKey, groupKeys)
	if err != nil {
		return summary, err
	}
	s.logger.Debug().
		Str("user_key", userKey.String()).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Msg("reconciled user directory groups")
	return summary, nil
}
