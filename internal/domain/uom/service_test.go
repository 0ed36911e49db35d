package uom

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

type mockRepo struct {
	units map[uuid.UUID]*UnitOfMeasure
}

func newMockRepo() *mockRepo {
	return &mockRepo{units: make(map[uuid.UUID]*UnitOfMeasure)}
}

func hasRole(u *UnitOfMeasure, role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (m *mockRepo) List(_ context.Context, filter ListFilter) ([]*UnitOfMeasure, error) {
	var r []*UnitOfMeasure
	for _, u := range m.units {
		if filter.Role != nil && !hasRole(u, *filter.Role) {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		r = append(r, u)
	}
	return r, nil
}

func (m *mockRepo) Get(_ context.Context, key uuid.UUID) (*UnitOfMeasure, error) {
	u, ok := m.units[key]
	if !ok {
		return nil, sqlerr.NotFoundFor(table)
	}
	return u, nil
}

func (m *mockRepo) GetByCode(_ context.Context, code string) (*UnitOfMeasure, error) {
	for _, u := range m.units {
		if u.Code == code {
			return u, nil
		}
	}
	return nil, sqlerr.NotFoundFor(table)
}

func (m *mockRepo) Create(_ context.Context, u *UnitOfMeasure) error {
	u.Key = uuid.New()
	m.units[u.Key] = u
	return nil
}

func (m *mockRepo) Update(_ context.Context, u *UnitOfMeasure) error {
	cur, ok := m.units[u.Key]
	if !ok {
		return sqlerr.NotFoundFor(table)
	}
	u.Roles = cur.Roles
	m.units[u.Key] = u
	return nil
}

func (m *mockRepo) Delete(_ context.Context, key uuid.UUID) error {
	if _, ok := m.units[key]; !ok {
		return sqlerr.NotFoundFor(table)
	}
	delete(m.units, key)
	return nil
}

func (m *mockRepo) UpdateRoles(_ context.Context, key uuid.UUID, rs []Role) (reconcile.Summary, error) {
	u, ok := m.units[key]
	if !ok {
		return reconcile.Summary{}, sqlerr.NotFoundFor(table)
	}
	diff := reconcile.Diff(u.Roles, rs)
	u.Roles = append(diff.Kept, diff.Added...)
	return diff.Summary(), nil
}

func newTestService() *Service {
	return NewService(newMockRepo(), zerolog.Nop())
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

func TestCreateUnitOfMeasure(t *testing.T) {
	svc := newTestService()
	u := &UnitOfMeasure{Code: " mg ", Description: "Milligram", Roles: []Role{RoleStrength, RoleDose, RoleStrength}}
	if err := svc.CreateUnitOfMeasure(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Code != "MG" || !u.Active || len(u.Roles) != 2 {
		t.Errorf("unexpected unit %+v", u)
	}

	got, err := svc.GetUnitOfMeasureByCode(context.Background(), "mg")
	if err != nil || got.Key != u.Key {
		t.Fatalf("lookup by code: %v", err)
	}
}

func TestCreateUnitOfMeasure_Validation(t *testing.T) {
	svc := newTestService()
	requireStatus(t, svc.CreateUnitOfMeasure(context.Background(), &UnitOfMeasure{Description: "x"}), http.StatusBadRequest)
	requireStatus(t, svc.CreateUnitOfMeasure(context.Background(),
		&UnitOfMeasure{Code: "ML", Description: "Millilitre", Roles: []Role{"WEIGHT"}}), http.StatusBadRequest)
}

func TestListUnitsOfMeasure_ByRole(t *testing.T) {
	svc := newTestService()
	_ = svc.CreateUnitOfMeasure(context.Background(), &UnitOfMeasure{Code: "MG", Description: "Milligram", Roles: []Role{RoleStrength}})
	_ = svc.CreateUnitOfMeasure(context.Background(), &UnitOfMeasure{Code: "ML", Description: "Millilitre", Roles: []Role{RoleVolume}})

	volume := RoleVolume
	units, err := svc.ListUnitsOfMeasure(context.Background(), ListFilter{Role: &volume})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 || units[0].Code != "ML" {
		t.Errorf("unexpected units %+v", units)
	}

	bad := Role("mass")
	_, err = svc.ListUnitsOfMeasure(context.Background(), ListFilter{Role: &bad})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestUpdateUnitOfMeasureRoles(t *testing.T) {
	svc := newTestService()
	u := &UnitOfMeasure{Code: "ML", Description: "Millilitre", Roles: []Role{RoleVolume, RoleDose}}
	_ = svc.CreateUnitOfMeasure(context.Background(), u)

	summary, err := svc.UpdateUnitOfMeasureRoles(context.Background(), u.Key, []Role{RoleVolume, RoleTotalVolume})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != (reconcile.Summary{Added: 1, Removed: 1}) {
		t.Errorf("unexpected summary %+v", summary)
	}

	_, err = svc.UpdateUnitOfMeasureRoles(context.Background(), uuid.New(), nil)
	if !errors.Is(err, sqlerr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
