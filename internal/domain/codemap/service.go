package codemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ehr/dispensing/internal/domain/adt"
	"github.com/ehr/dispensing/internal/domain/uom"
	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
	"github.com/ehr/dispensing/internal/platform/validation"
)

// UnitLookup finds a unit of measure by its internal code.
type UnitLookup interface {
	GetByCode(ctx context.Context, code string) (*uom.UnitOfMeasure, error)
}

type Service struct {
	repo   Repository
	units  UnitLookup
	logger zerolog.Logger
}

func NewService(repo Repository, units UnitLookup, logger zerolog.Logger) *Service {
	return &Service{repo: repo, units: units, logger: logger.With().Str("component", "codemap").Logger()}
}

func parseCategory(field, raw string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", validation.From(validation.Field(field, "must be one of: "+categories.String()))
	}
	return c, nil
}

// checkInternalCode canonicalizes m.InternalCode and rejects a code that the
// category's internal set does not contain.
func (s *Service) checkInternalCode(ctx context.Context, field string, m *Mapping) error {
	code := strings.ToUpper(strings.TrimSpace(m.InternalCode))
	switch m.Category {
	case CategoryGender:
		g, err := adt.ParseGender(code)
		if err != nil {
			return validation.From(validation.Field(field, err.Error()))
		}
		m.InternalCode = string(g)
	case CategoryPatientIDType:
		t, err := adt.ParseIDType(code)
		if err != nil {
			return validation.From(validation.Field(field, err.Error()))
		}
		m.InternalCode = string(t)
	case CategoryUnitOfMeasure:
		u, err := s.units.GetByCode(ctx, code)
		if errors.Is(err, sqlerr.ErrNotFound) {
			return validation.From(validation.Field(field, fmt.Sprintf("unknown unit of measure code %q", code)))
		}
		if err != nil {
			return err
		}
		m.InternalCode = u.Code
	}
	return nil
}

func (s *Service) normalize(ctx context.Context, prefix string, m *Mapping) error {
	m.ExternalSystem = strings.TrimSpace(m.ExternalSystem)
	m.ExternalCode = strings.TrimSpace(m.ExternalCode)
	m.InternalCode = strings.TrimSpace(m.InternalCode)
	c, err := parseCategory(prefix+"category", string(m.Category))
	if err != nil {
		return err
	}
	m.Category = c
	if err := validation.Struct(m); err != nil {
		return err
	}
	return s.checkInternalCode(ctx, prefix+"internal_code", m)
}

func (s *Service) ListMappings(ctx context.Context, category, system string) ([]*Mapping, error) {
	var c Category
	if category != "" {
		var err error
		if c, err = parseCategory("category", category); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, c, strings.TrimSpace(system))
}

func (s *Service) Resolve(ctx context.Context, system, category, externalCode string) (*Mapping, error) {
	c, err := parseCategory("category", category)
	if err != nil {
		return nil, err
	}
	return s.repo.Resolve(ctx, strings.TrimSpace(system), c, strings.TrimSpace(externalCode))
}

func (s *Service) UpsertMapping(ctx context.Context, m *Mapping) (bool, error) {
	if err := s.normalize(ctx, "", m); err != nil {
		return false, err
	}
	return s.repo.Upsert(ctx, m)
}

func (s *Service) DeleteMapping(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}

// Import reads a YAML document and upserts every mapping in it in one
// transaction. Nothing is written if any entry is invalid.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, validation.From(validation.Field("mappings", "document is empty"))
		}
		return ImportResult{}, errs.NewBadRequestError("invalid import document: "+err.Error(), true, nil, nil)
	}
	if len(doc.Mappings) == 0 {
		return ImportResult{}, validation.From(validation.Field("mappings", "document has no mappings"))
	}

	seen := make(map[string]int, len(doc.Mappings))
	for i := range doc.Mappings {
		m := &doc.Mappings[i]
		if strings.TrimSpace(m.ExternalSystem) == "" {
			m.ExternalSystem = doc.System
		}
		prefix := fmt.Sprintf("mappings[%d].", i)
		if err := s.normalize(ctx, prefix, m); err != nil {
			return ImportResult{}, err
		}
		id := m.ExternalSystem + "\x00" + string(m.Category) + "\x00" + m.ExternalCode
		if first, dup := seen[id]; dup {
			return ImportResult{}, validation.From(validation.Field(prefix+"external_code",
				fmt.Sprintf("repeats mappings[%d]", first)))
		}
		seen[id] = i
	}

	res, err := s.repo.UpsertAll(ctx, doc.Mappings)
	if err != nil {
		return ImportResult{}, err
	}
	s.logger.Info().
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Msg("code mappings imported")
	return res, nil
}
