package reconcile

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	res := Diff([]string{"a", "b", "c"}, []string{"c", "d", "a", "d"})
	assert.Equal(t, []string{"d"}, res.Added)
	assert.Equal(t, []string{"b"}, res.Removed)
	assert.Equal(t, []string{"c", "a"}, res.Kept)
	assert.False(t, res.Empty())
}

func TestDiff_Empty(t *testing.T) {
	res := Diff([]int{1, 2}, []int{2, 1})
	assert.True(t, res.Empty())
	assert.Equal(t, []int{2, 1}, res.Kept)

	res = Diff[int](nil, nil)
	assert.True(t, res.Empty())
}

func TestDiff_ClearAll(t *testing.T) {
	res := Diff([]int{1, 2, 2}, nil)
	assert.Equal(t, []int{1, 2}, res.Removed)
	assert.Empty(t, res.Added)
}

type row struct {
	Key  uuid.UUID
	Name string
}

func TestItems(t *testing.T) {
	k1, k2, k3 := uuid.New(), uuid.New(), uuid.New()
	desired := []row{
		{Name: "new"},
		{Key: k2, Name: "renamed"},
		{Key: k3, Name: "supplied"},
		{Name: "another"},
	}

	res := Items([]uuid.UUID{k1, k2}, desired, func(r row) uuid.UUID { return r.Key })

	assert.Equal(t, []row{{Name: "new"}, {Key: k3, Name: "supplied"}, {Name: "another"}}, res.Added)
	assert.Equal(t, []row{{Key: k2, Name: "renamed"}}, res.Updated)
	assert.Equal(t, []uuid.UUID{k1}, res.Removed)
}

func TestItems_DuplicateDesiredKey(t *testing.T) {
	k := uuid.New()
	res := Items([]uuid.UUID{k}, []row{{Key: k, Name: "a"}, {Key: k, Name: "b"}}, func(r row) uuid.UUID { return r.Key })
	assert.Len(t, res.Updated, 1)
	assert.Equal(t, "a", res.Updated[0].Name)
	assert.Empty(t, res.Removed)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, Summary{Added: 1, Removed: 1}, Diff([]int{1}, []int{2}).Summary())

	k := uuid.New()
	res := Items([]uuid.UUID{k}, []row{{Key: k}, {}}, func(r row) uuid.UUID { return r.Key })
	assert.Equal(t, Summary{Added: 1, Updated: 1}, res.Summary())
}
