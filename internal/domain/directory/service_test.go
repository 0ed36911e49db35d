package directory

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

	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

type mockDomainRepo struct {
	domains map[uuid.UUID]*Domain
}

func (m *mockDomainRepo) List(_ context.Context) ([]*Domain, error) {
	var r []*Domain
	for _, d := range m.domains {
		r = append(r, d)
	}
	return r, nil
}

func (m *mockDomainRepo) Get(_ context.Context, key uuid.UUID) (*Domain, error) {
	d, ok := m.domains[key]
	if !ok {
		return nil, sqlerr.NotFoundFor("ad_domain")
	}
	return d, nil
}

func (m *mockDomainRepo) GetByName(_ context.Context, name string) (*Domain, error) {
	for _, d := range m.domains {
		if strings.EqualFold(d.FullyQualifiedName, name) {
			return d, nil
		}
	}
	return nil, sqlerr.NotFoundFor("ad_domain")
}

func (m *mockDomainRepo) Create(_ context.Context, d *Domain) error {
	d.Key = uuid.New()
	d.Version = 1
	m.domains[d.Key] = d
	return nil
}

func (m *mockDomainRepo) Update(_ context.Context, d *Domain) error {
	cur, ok := m.domains[d.Key]
	if !ok {
		return sqlerr.NotFoundFor("ad_domain")
	}
	if cur.Version != d.Version {
		return sqlerr.ConcurrencyFor("ad_domain")
	}
	d.Version++
	m.domains[d.Key] = d
	return nil
}

func (m *mockDomainRepo) Delete(_ context.Context, key uuid.UUID) error {
	if _, ok := m.domains[key]; !ok {
		return sqlerr.NotFoundFor("ad_domain")
	}
	delete(m.domains, key)
	return nil
}

type mockGroupRepo struct {
	groups  map[uuid.UUID]*Group
	members map[uuid.UUID][]uuid.UUID
}

func (m *mockGroupRepo) List(_ context.Context, domainKey uuid.UUID) ([]*Group, error) {
	var r []*Group
	for _, g := range m.groups {
		if g.DomainKey == domainKey {
			r = append(r, g)
		}
	}
	return r, nil
}

func (m *mockGroupRepo) GetByKeys(_ context.Context, keys []uuid.UUID) ([]*Group, error) {
	var r []*Group
	for _, k := range keys {
		if g, ok := m.groups[k]; ok {
			r = append(r, g)
		}
	}
	return r, nil
}

func (m *mockGroupRepo) Create(_ context.Context, g *Group) error {
	g.Key = uuid.New()
	m.groups[g.Key] = g
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, key uuid.UUID) error {
	if _, ok := m.groups[key]; !ok {
		return sqlerr.NotFoundFor("ad_group")
	}
	delete(m.groups, key)
	return nil
}

func (m *mockGroupRepo) ListForUser(ctx context.Context, userKey uuid.UUID) ([]*Group, error) {
	return m.GetByKeys(ctx, m.members[userKey])
}

func (m *mockGroupRepo) UpdateUserGroups(_ context.Context, userKey uuid.UUID, groupKeys []uuid.UUID) (reconcile.Summary, error) {
	diff := reconcile.Diff(m.members[userKey], groupKeys)
	m.members[userKey] = append(diff.Kept, diff.Added...)
	return diff.Summary(), nil
}

func newTestService() *Service {
	return NewService(
		&mockDomainRepo{domains: make(map[uuid.UUID]*Domain)},
		&mockGroupRepo{groups: make(map[uuid.UUID]*Group), members: make(map[uuid.UUID][]uuid.UUID)},
		zerolog.Nop(),
	)
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %v", err)
	assert.Equal(t, status, httpErr.Status)
}

func strPtr(s string) *string { return &s }

func TestCreateDomain(t *testing.T) {
	svc := newTestService()
	d := &Domain{FullyQualifiedName: " Corp.Example.ORG ", ShortName: strPtr("corp")}
	require.NoError(t, svc.CreateDomain(context.Background(), d))
	assert.Equal(t, "corp.example.org", d.FullyQualifiedName)
	assert.Equal(t, "CORP", *d.ShortName)

	found, err := svc.GetDomainByName(context.Background(), "CORP.EXAMPLE.ORG")
	require.NoError(t, err)
	assert.Equal(t, d.Key, found.Key)
}

func TestCreateDomain_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name   string
		domain *Domain
	}{
		{"missing name", &Domain{}},
		{"not a hostname", &Domain{FullyQualifiedName: "not a domain"}},
		{"short name too long", &Domain{FullyQualifiedName: "corp.example.org", ShortName: strPtr("ABCDEFGHIJKLMNOP")}},
		{"sync interval too short", &Domain{FullyQualifiedName: "corp.example.org", ScheduledSyncEnabled: true, SyncIntervalMinutes: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireStatus(t, svc.CreateDomain(context.Background(), tt.domain), http.StatusBadRequest)
		})
	}
}

func TestUpdateDomain_Concurrency(t *testing.T) {
	svc := newTestService()
	d := &Domain{FullyQualifiedName: "corp.example.org"}
	require.NoError(t, svc.CreateDomain(context.Background(), d))

	first := &Domain{Key: d.Key, FullyQualifiedName: "corp.example.org", ScheduledSyncEnabled: true, SyncIntervalMinutes: 60, Version: 1}
	require.NoError(t, svc.UpdateDomain(context.Background(), first))
	assert.Equal(t, 2, first.Version)

	second := &Domain{Key: d.Key, FullyQualifiedName: "corp.example.org", Version: 1}
	assert.ErrorIs(t, svc.UpdateDomain(context.Background(), second), sqlerr.ErrConcurrency)
}

func TestCreateGroup(t *testing.T) {
	svc := newTestService()
	d := &Domain{FullyQualifiedName: "corp.example.org"}
	require.NoError(t, svc.CreateDomain(context.Background(), d))

	g := &Group{DomainKey: d.Key, Name: "Pharmacists", SecurityIdentifier: "s-1-5-21-1004"}
	require.NoError(t, svc.CreateGroup(context.Background(), g))
	assert.Equal(t, "S-1-5-21-1004", g.SecurityIdentifier)

	requireStatus(t, svc.CreateGroup(context.Background(),
		&Group{DomainKey: d.Key, Name: "Bad", SecurityIdentifier: "pharmacists"}), http.StatusBadRequest)

	err := svc.CreateGroup(context.Background(), &Group{DomainKey: uuid.New(), Name: "Orphan", SecurityIdentifier: "S-1-5-21-9"})
	assert.ErrorIs(t, err, sqlerr.ErrNotFound)
}

func TestUpdateUserDirectoryGroups(t *testing.T) {
	svc := newTestService()
	user := uuid.New()
	g1, g2, g3 := uuid.New(), uuid.New(), uuid.New()

	summary, err := svc.UpdateUserDirectoryGroups(context.Background(), user, []uuid.UUID{g1, g2})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 2}, summary)

	summary, err = svc.UpdateUserDirectoryGroups(context.Background(), user, []uuid.UUID{g2, g3, g3})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Removed: 1}, summary)

	_, err = svc.UpdateUserDirectoryGroups(context.Background(), uuid.Nil, nil)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestGetGroupsByKeys_Dedupes(t *testing.T) {
	svc := newTestService()
	d := &Domain{FullyQualifiedName: "corp.example.org"}
	require.NoError(t, svc.CreateDomain(context.Background(), d))
	g := &Group{DomainKey: d.Key, Name: "Techs", SecurityIdentifier: "S-1-5-21-7"}
	require.NoError(t, svc.CreateGroup(context.Background(), g))

	groups, err := svc.GetGroupsByKeys(context.Background(), []uuid.UUID{g.Key, g.Key, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}
