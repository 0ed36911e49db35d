package location

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

// -- Mock Repositories --

type mockUnitRepo struct {
	units map[uuid.UUID]*Unit
}

func newMockUnitRepo() *mockUnitRepo {
	return &mockUnitRepo{units: make(map[uuid.UUID]*Unit)}
}

func (m *mockUnitRepo) List(_ context.Context, filter UnitFilter, limit, offset int) ([]*Unit, int, error) {
	var r []*Unit
	for _, u := range m.units {
		if filter.FacilityKey != uuid.Nil && u.FacilityKey != filter.FacilityKey {
			continue
		}
		r = append(r, u)
	}
	return r, len(r), nil
}

func (m *mockUnitRepo) Get(_ context.Context, key uuid.UUID) (*Unit, error) {
	u, ok := m.units[key]
	if !ok {
		return nil, sqlerr.NotFoundFor("unit")
	}
	return u, nil
}

func (m *mockUnitRepo) Create(_ context.Context, u *Unit) error {
	u.Key = uuid.New()
	u.Version = 1
	m.units[u.Key] = u
	return nil
}

func (m *mockUnitRepo) Update(_ context.Context, u *Unit) error {
	cur, ok := m.units[u.Key]
	if !ok {
		return sqlerr.NotFoundFor("unit")
	}
	if cur.Version != u.Version {
		return sqlerr.ConcurrencyFor("unit_snapshot")
	}
	upd := *u
	upd.Version++
	upd.Rooms, upd.AreaKeys = cur.Rooms, cur.AreaKeys
	m.units[u.Key] = &upd
	u.Version = upd.Version
	return nil
}

func (m *mockUnitRepo) Delete(_ context.Context, key uuid.UUID, expectedVersion int) error {
	cur, ok := m.units[key]
	if !ok {
		return sqlerr.NotFoundFor("unit")
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return sqlerr.ConcurrencyFor("unit_snapshot")
	}
	delete(m.units, key)
	return nil
}

func (m *mockUnitRepo) UpdateRooms(_ context.Context, unitKey uuid.UUID, rooms []Room) (reconcile.Summary, error) {
	u, ok := m.units[unitKey]
	if !ok {
		return reconcile.Summary{}, sqlerr.NotFoundFor("unit")
	}
	var current []uuid.UUID
	for _, rm := range u.Rooms {
		current = append(current, rm.Key)
	}
	diff := reconcile.Items(current, rooms, func(rm Room) uuid.UUID { return rm.Key })
	u.Rooms = rooms
	return diff.Summary(), nil
}

func (m *mockUnitRepo) UpdateAreas(_ context.Context, unitKey uuid.UUID, areaKeys []uuid.UUID) (reconcile.Summary, error) {
	u, ok := m.units[unitKey]
	if !ok {
		return reconcile.Summary{}, sqlerr.NotFoundFor("unit")
	}
	diff := reconcile.Diff(u.AreaKeys, areaKeys)
	u.AreaKeys = append(diff.Kept, diff.Added...)
	return diff.Summary(), nil
}

type mockAreaRepo struct {
	areas map[uuid.UUID]*Area
}

func newMockAreaRepo() *mockAreaRepo {
	return &mockAreaRepo{areas: make(map[uuid.UUID]*Area)}
}

func (m *mockAreaRepo) List(_ context.Context, facilityKey uuid.UUID) ([]*Area, error) {
	var r []*Area
	for _, a := range m.areas {
		if a.FacilityKey == facilityKey {
			r = append(r, a)
		}
	}
	return r, nil
}

func (m *mockAreaRepo) Get(_ context.Context, key uuid.UUID) (*Area, error) {
	a, ok := m.areas[key]
	if !ok {
		return nil, sqlerr.NotFoundFor("area")
	}
	return a, nil
}

func (m *mockAreaRepo) Create(_ context.Context, a *Area) error {
	a.Key = uuid.New()
	m.areas[a.Key] = a
	return nil
}

func (m *mockAreaRepo) Update(_ context.Context, a *Area) error {
	cur, ok := m.areas[a.Key]
	if !ok {
		return sqlerr.NotFoundFor("area")
	}
	a.FacilityKey = cur.FacilityKey
	m.areas[a.Key] = a
	return nil
}

func (m *mockAreaRepo) Delete(_ context.Context, key uuid.UUID) error {
	if _, ok := m.areas[key]; !ok {
		return sqlerr.NotFoundFor("area")
	}
	delete(m.areas, key)
	return nil
}

func newTestService() *Service {
	return NewService(newMockUnitRepo(), newMockAreaRepo(), zerolog.Nop())
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError with status %d, got %v", status, err)
	}
	if httpErr.Status != status {
		t.Fatalf("expected status %d, got %d", status, httpErr.Status)
	}
}

// -- Unit Tests --

func TestCreateUnit(t *testing.T) {
	svc := newTestService()
	area := uuid.New()
	u := &Unit{
		FacilityKey: uuid.New(),
		Name:        " 4 West ",
		Rooms:       []Room{{Name: "401", BedCount: 2}, {Name: "402", BedCount: 1}},
		AreaKeys:    []uuid.UUID{area, area},
	}
	if err := svc.CreateUnit(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Name != "4 West" || !u.Active || u.Version != 1 {
		t.Errorf("unexpected unit %+v", u)
	}
	if len(u.AreaKeys) != 1 {
		t.Errorf("expected duplicate area keys collapsed, got %v", u.AreaKeys)
	}
}

func TestCreateUnit_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name string
		unit *Unit
	}{
		{"missing facility", &Unit{Name: "4 West"}},
		{"missing name", &Unit{FacilityKey: uuid.New()}},
		{"negative beds", &Unit{FacilityKey: uuid.New(), Name: "4W", Rooms: []Room{{Name: "1", BedCount: -1}}}},
		{"duplicate room", &Unit{FacilityKey: uuid.New(), Name: "4W", Rooms: []Room{{Name: "401"}, {Name: "401 "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireStatus(t, svc.CreateUnit(context.Background(), tt.unit), http.StatusBadRequest)
		})
	}
}

func TestUpdateUnit_KeepsFacility(t *testing.T) {
	svc := newTestService()
	facility := uuid.New()
	u := &Unit{FacilityKey: facility, Name: "4 West"}
	if err := svc.CreateUnit(context.Background(), u); err != nil {
		t.Fatalf("create: %v", err)
	}

	upd := &Unit{Key: u.Key, Name: "4 West Surgical", Active: true, Version: 1}
	if err := svc.UpdateUnit(context.Background(), upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.FacilityKey != facility || upd.Version != 2 {
		t.Errorf("unexpected unit after update %+v", upd)
	}

	stale := &Unit{Key: u.Key, FacilityKey: facility, Name: "stale", Version: 1}
	if err := svc.UpdateUnit(context.Background(), stale); !errors.Is(err, sqlerr.ErrConcurrency) {
		t.Errorf("expected concurrency error, got %v", err)
	}
}

func TestUpdateUnit_Unknown(t *testing.T) {
	svc := newTestService()
	err := svc.UpdateUnit(context.Background(), &Unit{Key: uuid.New(), Name: "x", Version: 1})
	if !errors.Is(err, sqlerr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateUnitRooms(t *testing.T) {
	svc := newTestService()
	u := &Unit{FacilityKey: uuid.New(), Name: "4W", Rooms: []Room{{Key: uuid.New(), Name: "401"}, {Key: uuid.New(), Name: "402"}}}
	_ = svc.CreateUnit(context.Background(), u)

	summary, err := svc.UpdateUnitRooms(context.Background(), u.Key, []Room{
		{Key: u.Rooms[0].Key, Name: "401A", BedCount: 2},
		{Name: "403"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != (reconcile.Summary{Added: 1, Updated: 1, Removed: 1}) {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestUpdateUnitAreas(t *testing.T) {
	svc := newTestService()
	a1, a2 := uuid.New(), uuid.New()
	u := &Unit{FacilityKey: uuid.New(), Name: "4W", AreaKeys: []uuid.UUID{a1}}
	_ = svc.CreateUnit(context.Background(), u)

	summary, err := svc.UpdateUnitAreas(context.Background(), u.Key, []uuid.UUID{a2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Added != 1 || summary.Removed != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}

	_, err = svc.UpdateUnitAreas(context.Background(), u.Key, []uuid.UUID{uuid.Nil})
	requireStatus(t, err, http.StatusBadRequest)
}

// -- Area Tests --

func TestAreaLifecycle(t *testing.T) {
	svc := newTestService()
	facility := uuid.New()
	a := &Area{FacilityKey: facility, Name: " Pharmacy "}
	if err := svc.CreateArea(context.Background(), a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Name != "Pharmacy" {
		t.Errorf("expected trimmed name, got %q", a.Name)
	}

	areas, _ := svc.ListAreas(context.Background(), facility)
	if len(areas) != 1 {
		t.Fatalf("expected 1 area, got %d", len(areas))
	}

	requireStatus(t, svc.UpdateArea(context.Background(), &Area{Key: a.Key}), http.StatusBadRequest)
	if err := svc.UpdateArea(context.Background(), &Area{Key: a.Key, Name: "Main Pharmacy"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := svc.DeleteArea(context.Background(), a.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetArea(context.Background(), a.Key); !errors.Is(err, sqlerr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}
