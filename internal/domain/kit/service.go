package kit

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
	return &Service{repo: repo, logger: logger.With().Str("component", "kit").Logger()}
}

// normalizeItems upper-cases item ids and rejects an item listed twice.
func normalizeItems(items []Item) error {
	seen := make(map[string]bool, len(items))
	for i := range items {
		it := &items[i]
		it.ItemID = strings.ToUpper(strings.TrimSpace(it.ItemID))
		if err := validation.Struct(it); err != nil {
			return err
		}
		if seen[it.ItemID] {
			return validation.From(validation.Field(fmt.Sprintf("items[%d].item_id", i), "is listed more than once"))
		}
		seen[it.ItemID] = true
	}
	return nil
}

func (s *Service) CreateKit(ctx context.Context, k *Kit) error {
	k.Name = strings.TrimSpace(k.Name)
	k.Active = true
	if err := validation.Struct(k); err != nil {
		return err
	}
	if err := normalizeItems(k.Items); err != nil {
		return err
	}
	return s.repo.Create(ctx, k)
}

func (s *Service) GetKit(ctx context.Context, key uuid.UUID) (*Kit, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) ListByFacility(ctx context.Context, facilityKey uuid.UUID, activeOnly bool) ([]*Kit, error) {
	return s.repo.ListByFacility(ctx, facilityKey, activeOnly)
}

// UpdateKit rewrites the kit header. Items are left alone.
func (s *Service) UpdateKit(ctx context.Context, k *Kit) error {
	if k.FacilityKey == uuid.Nil {
		cur, err := s.repo.Get(ctx, k.Key)
		if err != nil {
			return err
		}
		k.FacilityKey = cur.FacilityKey
	}
	k.Name = strings.TrimSpace(k.Name)
	k.Items = nil
	if err := validation.Struct(k); err != nil {
		return err
	}
	return s.repo.Update(ctx, k)
}

func (s *Service) DeleteKit(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}

func (s *Service) UpdateKitItems(ctx context.Context, kitKey uuid.UUID, items []Item) (reconcile.Summary, error) {
	if err := normalizeItems(items); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.repo.UpdateItems(ctx, kitKey, items)
	if err != nil {
		return summary, err
	}
	s.logger.Debug().
		Str("kit_key", kitKey.String()).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("reconciled kit items")
	return summary, nil
}
