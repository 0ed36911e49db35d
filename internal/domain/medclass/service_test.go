package medclass

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

type mockRepo struct {
	groups map[uuid.UUID]*Group
}

func (m *mockRepo) List(_ context.Context) ([]*Group, error) {
	var r []*Group
	for _, g := range m.groups {
		r = append(r, g)
	}
	return r, nil
}

func (m *mockRepo) Get(_ context.Context, key uuid.UUID) (*Group, error) {
	g, ok := m.groups[key]
	if !ok {
		return nil, sqlerr.NotFoundFor(table)
	}
	return g, nil
}

func (m *mockRepo) GetByCode(_ context.Context, code string) (*Group, error) {
	for _, g := range m.groups {
		if g.Code == code {
			return g, nil
		}
	}
	return nil, sqlerr.NotFoundFor(table)
}

func (m *mockRepo) Create(_ context.Context, g *Group) error {
	g.Key = uuid.New()
	m.groups[g.Key] = g
	return nil
}

func (m *mockRepo) Update(_ context.Context, g *Group) error {
	cur, ok := m.groups[g.Key]
	if !ok {
		return sqlerr.NotFoundFor(table)
	}
	g.ClassCodes = cur.ClassCodes
	m.groups[g.Key] = g
	return nil
}

func (m *mockRepo) Delete(_ context.Context, key uuid.UUID) error {
	if _, ok := m.groups[key]; !ok {
		return sqlerr.NotFoundFor(table)
	}
	delete(m.groups, key)
	return nil
}

func (m *mockRepo) UpdateClassCodes(_ context.Context, groupKey uuid.UUID, classCodes []string) (reconcile.Summary, error) {
	g, ok := m.groups[groupKey]
	if !ok {
		return reconcile.Summary{}, sqlerr.NotFoundFor(table)
	}
	diff := reconcile.Diff(g.ClassCodes, classCodes)
	g.ClassCodes = classCodes
	return diff.Summary(), nil
}

func newTestService() *Service {
	return NewService(&mockRepo{groups: make(map[uuid.UUID]*Group)}, zerolog.Nop())
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %v", err)
	require.Equal(t, status, httpErr.Status)
}

func TestCreateGroup_NormalizesCodes(t *testing.T) {
	svc := newTestService()
	g := &Group{Code: " opioid ", Description: "Opioid analgesics", ClassCodes: []string{"n02aa", "N02AB", " N02AA"}}
	require.NoError(t, svc.CreateGroup(context.Background(), g))
	assert.Equal(t, "OPIOID", g.Code)
	assert.Equal(t, []string{"N02AA", "N02AB"}, g.ClassCodes)

	got, err := svc.GetGroupByCode(context.Background(), "opioid")
	require.NoError(t, err)
	assert.Equal(t, g.Key, got.Key)
}

func TestCreateGroup_Validation(t *testing.T) {
	svc := newTestService()
	requireStatus(t, svc.CreateGroup(context.Background(), &Group{Description: "x"}), http.StatusBadRequest)
	requireStatus(t, svc.CreateGroup(context.Background(), &Group{Code: "X"}), http.StatusBadRequest)
	requireStatus(t, svc.CreateGroup(context.Background(),
		&Group{Code: "X", Description: "x", ClassCodes: []string{"  "}}), http.StatusBadRequest)
}

func TestUpdateGroupMedClasses(t *testing.T) {
	svc := newTestService()
	g := &Group{Code: "OPIOID", Description: "Opioids", ClassCodes: []string{"N02AA", "N02AB"}}
	require.NoError(t, svc.CreateGroup(context.Background(), g))

	summary, err := svc.UpdateGroupMedClasses(context.Background(), g.Key, []string{"n02ab", "N02AE", "N02AE"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Removed: 1}, summary)
	assert.Equal(t, []string{"N02AB", "N02AE"}, g.ClassCodes)

	_, err = svc.UpdateGroupMedClasses(context.Background(), g.Key, []string{"THIS-CODE-IS-FAR-TOO-LONG"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = svc.UpdateGroupMedClasses(context.Background(), uuid.New(), nil)
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}

func TestUpdateGroup_KeepsMembers(t *testing.T) {
	svc := newTestService()
	g := &Group{Code: "OPIOID", Description: "Opioids", ClassCodes: []string{"N02AA"}}
	require.NoError(t, svc.CreateGroup(context.Background(), g))

	upd := &Group{Key: g.Key, Code: "OPIOIDS", Description: "Opioid analgesics", ClassCodes: []string{"IGNORED"}}
	require.NoError(t, svc.UpdateGroup(context.Background(), upd))
	assert.Equal(t, []string{"N02AA"}, upd.ClassCodes)
}
