package pharmacyorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/domain/adt"
	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
	"github.com/ehr/dispensing/internal/platform/validation"
)

// EncounterLookup resolves the encounter an order is placed against.
type EncounterLookup interface {
	Get(ctx context.Context, key uuid.UUID) (*adt.Encounter, error)
}

type Service struct {
	repo       Repository
	encounters EncounterLookup
	logger     zerolog.Logger
}

func NewService(repo Repository, encounters EncounterLookup, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		encounters: encounters,
		logger:     logger.With().Str("component", "pharmacyorder").Logger(),
	}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func validWindow(field string, start, stop *time.Time) error {
	if start != nil && stop != nil && stop.Before(*start) {
		return validation.From(validation.Field(field, "must not be before the start time"))
	}
	return nil
}

// normalizeOrder checks the header and every child collection. Route codes
// are upper-cased and instruction types default to ADMINISTRATION.
func normalizeOrder(o *Order) error {
	o.OrderID = strings.TrimSpace(o.OrderID)
	o.Description = strings.TrimSpace(o.Description)
	for i := range o.Routes {
		o.Routes[i].Code = strings.ToUpper(strings.TrimSpace(o.Routes[i].Code))
		o.Routes[i].Description = trimPtr(o.Routes[i].Description)
	}
	for i := range o.Instructions {
		o.Instructions[i].Text = strings.TrimSpace(o.Instructions[i].Text)
		if o.Instructions[i].Type == "" {
			o.Instructions[i].Type = InstructionAdministration
		}
	}
	for i := range o.Timings {
		o.Timings[i].FrequencyText = trimPtr(o.Timings[i].FrequencyText)
	}

	if err := validation.Struct(o); err != nil {
		return err
	}
	if err := validWindow("stop_utc", o.StartUTC, o.StopUTC); err != nil {
		return err
	}

	routes := make(map[string]bool, len(o.Routes))
	for i, rt := range o.Routes {
		if routes[rt.Code] {
			return validation.From(validation.Field(fmt.Sprintf("routes[%d].code", i), "is listed more than once"))
		}
		routes[rt.Code] = true
	}
	for i, c := range o.Components {
		if (c.Strength == nil) != (c.StrengthUOMKey == nil) {
			return validation.From(validation.Field(fmt.Sprintf("components[%d].strength_uom_key", i),
				"must be given together with strength"))
		}
		if (c.Volume == nil) != (c.VolumeUOMKey == nil) {
			return validation.From(validation.Field(fmt.Sprintf("components[%d].volume_uom_key", i),
				"must be given together with volume"))
		}
	}
	for i := range o.Timings {
		if err := normalizeTiming(i, &o.Timings[i]); err != nil {
			return err
		}
	}
	for i, in := range o.Instructions {
		if !in.Type.Valid() {
			return validation.From(validation.Field(fmt.Sprintf("instructions[%d].type", i),
				"must be one of: "+instructionTypes.String()))
		}
	}
	return nil
}

// normalizeTiming rewrites administration times as HH:MM and rejects repeats.
func normalizeTiming(i int, t *Timing) error {
	if err := validWindow(fmt.Sprintf("timings[%d].end_utc", i), t.StartUTC, t.EndUTC); err != nil {
		return err
	}
	if t.RepeatPatternKey == nil && t.FrequencyText == nil && len(t.AdministrationTimes) == 0 {
		return validation.From(validation.Field(fmt.Sprintf("timings[%d]", i),
			"needs a repeat pattern, a frequency or administration times"))
	}
	seen := make(map[string]bool, len(t.AdministrationTimes))
	for j, raw := range t.AdministrationTimes {
		at, err := time.Parse("15:04", strings.TrimSpace(raw))
		if err != nil {
			return validation.From(validation.Field(fmt.Sprintf("timings[%d].administration_times[%d]", i, j),
				"must be a time of day as HH:MM"))
		}
		v := at.Format("15:04")
		if seen[v] {
			return validation.From(validation.Field(fmt.Sprintf("timings[%d].administration_times[%d]", i, j),
				"is listed more than once"))
		}
		seen[v] = true
		t.AdministrationTimes[j] = v
	}
	return nil
}

func terminalConflict(o *Order) error {
	return errs.NewConflictError(
		fmt.Sprintf("Order %s is %s and can no longer change", o.OrderID, strings.ToLower(string(o.Status))), nil)
}

// CreateOrder places a new order. The facility is taken from the encounter,
// which must exist and still be open.
func (s *Service) CreateOrder(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if !o.Status.Valid() {
		return validation.From(validation.Field("status", "must be one of: "+statuses.String()))
	}
	if o.Status.Terminal() {
		return validation.From(validation.Field("status", "a new order cannot start as "+string(o.Status)))
	}
	if err := normalizeOrder(o); err != nil {
		return err
	}

	enc, err := s.encounters.Get(ctx, o.EncounterKey)
	if errors.Is(err, sqlerr.ErrNotFound) {
		return validation.From(validation.Field("encounter_key", "does not exist"))
	}
	if err != nil {
		return err
	}
	if o.FacilityKey != uuid.Nil && o.FacilityKey != enc.FacilityKey {
		return validation.From(validation.Field("facility_key", "must match the encounter's facility"))
	}
	if enc.Status.Closed() {
		return errs.NewConflictError(
			fmt.Sprintf("Encounter %s is %s; no new orders can be placed", enc.VisitID, strings.ToLower(string(enc.Status))), nil)
	}
	o.FacilityKey = enc.FacilityKey

	if err := s.repo.Create(ctx, o); err != nil {
		return err
	}
	s.logger.Info().
		Str("order_key", o.Key.String()).
		Str("order_id", o.OrderID).
		Str("encounter_key", o.EncounterKey.String()).
		Msg("pharmacy order created")
	return nil
}

func (s *Service) GetOrder(ctx context.Context, key uuid.UUID) (*Order, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) GetOrderByOrderID(ctx context.Context, facilityKey uuid.UUID, orderID string) (*Order, error) {
	return s.repo.GetByOrderID(ctx, facilityKey, strings.TrimSpace(orderID))
}

func (s *Service) ListByEncounter(ctx context.Context, encounterKey uuid.UUID) ([]*Order, error) {
	return s.repo.ListByEncounter(ctx, encounterKey)
}

func (s *Service) ListByEncounters(ctx context.Context, encounterKeys []uuid.UUID) ([]*Order, error) {
	return s.repo.ListByEncounters(ctx, reconcile.Diff(nil, encounterKeys).Added)
}

// UpdateOrder rewrites an order that has not reached a terminal status.
func (s *Service) UpdateOrder(ctx context.Context, o *Order) (Changes, error) {
	cur, err := s.repo.Get(ctx, o.Key)
	if err != nil {
		return Changes{}, err
	}
	if cur.Status.Terminal() {
		return Changes{}, terminalConflict(cur)
	}
	o.FacilityKey, o.EncounterKey, o.OrderID, o.Status = cur.FacilityKey, cur.EncounterKey, cur.OrderID, cur.Status
	if err := normalizeOrder(o); err != nil {
		return Changes{}, err
	}
	changes, err := s.repo.Update(ctx, o)
	if err != nil {
		return changes, err
	}
	s.logger.Debug().
		Str("order_key", o.Key.String()).
		Interface("changes", changes).
		Msg("reconciled pharmacy order")
	return changes, nil
}

// UpdateStatus moves an order along its lifecycle. Setting the status it
// already has is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, key uuid.UUID, raw string) (*Order, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, validation.From(validation.Field("status", "must be one of: "+statuses.String()))
	}
	cur, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if cur.Status == next {
		return cur, nil
	}
	if cur.Status.Terminal() {
		return nil, terminalConflict(cur)
	}
	if !cur.Status.CanTransition(next) {
		return nil, errs.NewConflictError(
			fmt.Sprintf("Order %s cannot move from %s to %s", cur.OrderID, cur.Status, next), nil)
	}
	if err := s.repo.UpdateStatus(ctx, key, cur.Status, next); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("order_key", key.String()).
		Str("from", string(cur.Status)).
		Str("to", string(next)).
		Msg("pharmacy order status changed")
	cur.Status = next
	return cur, nil
}

func (s *Service) DeleteOrder(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}
