package codemap

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dispensing/internal/domain/uom"
	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

type mockRepo struct {
	mappings map[string]*Mapping
	imports  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{mappings: make(map[string]*Mapping)}
}

func identity(system string, c Category, code string) string {
	return system + "|" + string(c) + "|" + code
}

func (m *mockRepo) List(_ context.Context, category Category, system string) ([]*Mapping, error) {
	var r []*Mapping
	for _, mp := range m.mappings {
		if (category == "" || mp.Category == category) && (system == "" || mp.ExternalSystem == system) {
			r = append(r, mp)
		}
	}
	return r, nil
}

func (m *mockRepo) Resolve(_ context.Context, system string, category Category, externalCode string) (*Mapping, error) {
	mp, ok := m.mappings[identity(system, category, externalCode)]
	if !ok {
		return nil, sqlerr.NotFoundFor(table)
	}
	return mp, nil
}

func (m *mockRepo) Upsert(_ context.Context, mp *Mapping) (bool, error) {
	id := identity(mp.ExternalSystem, mp.Category, mp.ExternalCode)
	if cur, ok := m.mappings[id]; ok {
		mp.Key = cur.Key
		m.mappings[id] = mp
		return false, nil
	}
	mp.Key = uuid.New()
	m.mappings[id] = mp
	return true, nil
}

func (m *mockRepo) UpsertAll(ctx context.Context, mappings []Mapping) (ImportResult, error) {
	m.imports++
	var res ImportResult
	for i := range mappings {
		inserted, _ := m.Upsert(ctx, &mappings[i])
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

func (m *mockRepo) Delete(_ context.Context, key uuid.UUID) error {
	for id, mp := range m.mappings {
		if mp.Key == key {
			delete(m.mappings, id)
			return nil
		}
	}
	return sqlerr.NotFoundFor(table)
}

type mockUnits map[string]*uom.UnitOfMeasure

func (m mockUnits) GetByCode(_ context.Context, code string) (*uom.UnitOfMeasure, error) {
	u, ok := m[code]
	if !ok {
		return nil, sqlerr.NotFoundFor("unit_of_measure")
	}
	return u, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	units := mockUnits{"MG": {Key: uuid.New(), Code: "MG"}, "ML": {Key: uuid.New(), Code: "ML"}}
	return NewService(repo, units, zerolog.Nop()), repo
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %v", err)
	require.Equal(t, status, httpErr.Status)
}

func TestUpsertMapping_CanonicalizesCodes(t *testing.T) {
	svc, _ := newTestService()

	m := &Mapping{ExternalSystem: " HL7 ", Category: "gender", ExternalCode: "2", InternalCode: "f"}
	inserted, err := svc.UpsertMapping(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "HL7", m.ExternalSystem)
	assert.Equal(t, CategoryGender, m.Category)
	assert.Equal(t, "F", m.InternalCode)

	again := &Mapping{ExternalSystem: "HL7", Category: CategoryGender, ExternalCode: "2", InternalCode: "U"}
	inserted, err = svc.UpsertMapping(context.Background(), again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, m.Key, again.Key)

	got, err := svc.Resolve(context.Background(), "HL7", "GENDER", "2")
	require.NoError(t, err)
	assert.Equal(t, "U", got.InternalCode)
}

func TestUpsertMapping_RejectsUnknownInternalCode(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name    string
		mapping *Mapping
	}{
		{"gender", &Mapping{ExternalSystem: "HL7", Category: CategoryGender, ExternalCode: "9", InternalCode: "X"}},
		{"id type", &Mapping{ExternalSystem: "HL7", Category: CategoryPatientIDType, ExternalCode: "PP", InternalCode: "PASSPORT"}},
		{"unit", &Mapping{ExternalSystem: "HL7", Category: CategoryUnitOfMeasure, ExternalCode: "gtt", InternalCode: "GTT"}},
		{"category", &Mapping{ExternalSystem: "HL7", Category: "ROUTE", ExternalCode: "PO", InternalCode: "ORAL"}},
		{"missing system", &Mapping{Category: CategoryGender, ExternalCode: "1", InternalCode: "M"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertMapping(context.Background(), tt.mapping)
			requireStatus(t, err, http.StatusBadRequest)
		})
	}
}

func TestUpsertMapping_UnitOfMeasure(t *testing.T) {
	svc, _ := newTestService()
	m := &Mapping{ExternalSystem: "PYXIS", Category: CategoryUnitOfMeasure, ExternalCode: "milligram", InternalCode: "mg"}
	_, err := svc.UpsertMapping(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "MG", m.InternalCode)
}

const importDoc = `
system: HL7
mappings:
  - category: GENDER
    external_code: "1"
    internal_code: M
  - category: GENDER
    external_code: "2"
    internal_code: f
    description: Female
  - system: PHARMACY
    category: UNIT_OF_MEASURE
    external_code: mL
    internal_code: ML
`

func TestImport(t *testing.T) {
	svc, repo := newTestService()
	_, _ = svc.UpsertMapping(context.Background(),
		&Mapping{ExternalSystem: "HL7", Category: CategoryGender, ExternalCode: "1", InternalCode: "U"})

	res, err := svc.Import(context.Background(), strings.NewReader(importDoc))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Inserted: 2, Updated: 1}, res)
	assert.Equal(t, 1, repo.imports)

	unit, err := svc.Resolve(context.Background(), "PHARMACY", "UNIT_OF_MEASURE", "mL")
	require.NoError(t, err)
	assert.Equal(t, "ML", unit.InternalCode)
}

func TestImport_RejectsWholeDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"no mappings", "system: HL7\n"},
		{"unknown field", "system: HL7\nmappings:\n  - category: GENDER\n    external_code: '1'\n    internal_code: M\n    colour: red\n"},
		{"bad entry", "system: HL7\nmappings:\n  - category: GENDER\n    external_code: '1'\n    internal_code: M\n  - category: GENDER\n    external_code: '2'\n    internal_code: Q\n"},
		{"duplicate", "system: HL7\nmappings:\n  - category: GENDER\n    external_code: '1'\n    internal_code: M\n  - category: gender\n    external_code: '1'\n    internal_code: F\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			_, err := svc.Import(context.Background(), strings.NewReader(tt.doc))
			requireStatus(t, err, http.StatusBadRequest)
			assert.Zero(t, repo.imports)
		})
	}
}

func TestListMappings_BadCategory(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ListMappings(context.Background(), "colour", "")
	requireStatus(t, err, http.StatusBadRequest)
}
