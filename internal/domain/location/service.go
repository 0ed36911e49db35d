package location

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
	units  UnitRepository
	areas  AreaRepository
	logger zerolog.Logger
}

func NewService(units UnitRepository, areas AreaRepository, logger zerolog.Logger) *Service {
	return &Service{units: units, areas: areas, logger: logger.With().Str("component", "location").Logger()}
}

// -- Unit --

func (s *Service) CreateUnit(ctx context.Context, u *Unit) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Active = true
	if err := validation.Struct(u); err != nil {
		return err
	}
	if err := validateRooms(u.Rooms); err != nil {
		return err
	}
	u.AreaKeys = reconcile.Diff(nil, u.AreaKeys).Added
	return s.units.Create(ctx, u)
}

func (s *Service) GetUnit(ctx context.Context, key uuid.UUID) (*Unit, error) {
	return s.units.Get(ctx, key)
}

func (s *Service) ListUnits(ctx context.Context, filter UnitFilter, limit, offset int) ([]*Unit, int, error) {
	return s.units.List(ctx, filter, limit, offset)
}

func (s *Service) UpdateUnit(ctx context.Context, u *Unit) error {
	u.Name = strings.TrimSpace(u.Name)
	if u.Version < 1 {
		return validation.From(validation.Field("version", "is required"))
	}
	// facility is fixed at creation
	if u.FacilityKey == uuid.Nil {
		cur, err := s.units.Get(ctx, u.Key)
		if err != nil {
			return err
		}
		u.FacilityKey = cur.FacilityKey
	}
	if err := validation.Struct(u); err != nil {
		return err
	}
	return s.units.Update(ctx, u)
}

func (s *Service) DeleteUnit(ctx context.Context, key uuid.UUID, expectedVersion int) error {
	return s.units.Delete(ctx, key, expectedVersion)
}

func (s *Service) UpdateUnitRooms(ctx context.Context, unitKey uuid.UUID, rooms []Room) (reconcile.Summary, error) {
	for i := range rooms {
		rooms[i].Name = strings.TrimSpace(rooms[i].Name)
		if err := validation.Struct(&rooms[i]); err != nil {
			return reconcile.Summary{}, err
		}
	}
	if err := validateRooms(rooms); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.units.UpdateRooms(ctx, unitKey, rooms)
	if err != nil {
		return summary, err
	}
	s.logReconcile("rooms", unitKey, summary)
	return summary, nil
}

func (s *Service) UpdateUnitAreas(ctx context.Context, unitKey uuid.UUID, areaKeys []uuid.UUID) (reconcile.Summary, error) {
	for i, k := range areaKeys {
		if k == uuid.Nil {
			return reconcile.Summary{}, validation.From(validation.Field(fmt.Sprintf("area_keys[%d]", i), "is required"))
		}
	}
	summary, err := s.units.UpdateAreas(ctx, unitKey, areaKeys)
	if err != nil {
		return summary, err
	}
	s.logReconcile("areas", unitKey, summary)
	return summary, nil
}

func (s *Service) logReconcile(collection string, key uuid.UUID, summary reconcile.Summary) {
	s.logger.Debug().
		Str("unit_key", key.String()).
		Str("collection", collection).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("reconciled unit children")
}

// validateRooms rejects two rooms with the same name in one unit.
func validateRooms(rooms []Room) error {
	seen := make(map[string]bool, len(rooms))
	for i, rm := range rooms {
		name := strings.ToLower(strings.TrimSpace(rm.Name))
		if seen[name] {
			return validation.From(validation.Field(fmt.Sprintf("rooms[%d].name", i), "is listed more than once"))
		}
		seen[name] = true
	}
	return nil
}

// -- Area --

func (s *Service) CreateArea(ctx context.Context, a *Area) error {
	a.Name = strings.TrimSpace(a.Name)
	if err := validation.Struct(a); err != nil {
		return err
	}
	return s.areas.Create(ctx, a)
}

func (s *Service) GetArea(ctx context.Context, key uuid.UUID) (*Area, error) {
	return s.areas.Get(ctx, key)
}

func (s *Service) ListAreas(ctx context.Context, facilityKey uuid.UUID) ([]*Area, error) {
	return s.areas.List(ctx, facilityKey)
}

func (s *Service) UpdateArea(ctx context.Context, a *Area) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return validation.From(validation.Field("name", "is required"))
	}
	if len(a.Name) > 60 {
		return validation.From(validation.Field("name", "must be at most 60 characters"))
	}
	return s.areas.Update(ctx, a)
}

func (s *Service) DeleteArea(ctx context.Context, key uuid.UUID) error {
	return s.areas.Delete(ctx, key)
}
