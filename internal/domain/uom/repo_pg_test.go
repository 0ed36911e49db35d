package uom

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRepo_List_RoleFilter(t *testing.T) {
	mock := newMock(t)
	mg, mcg := uuid.New(), uuid.New()
	active := true

	mock.ExpectQuery("FROM unit_of_measure u WHERE 1=1 AND EXISTS .* r.role = \\$1\\) AND u.active = \\$2 ORDER BY u.code").
		WithArgs("STRENGTH", true).
		WillReturnRows(pgxmock.NewRows([]string{"key", "code", "description", "active"}).
			AddRow(mcg, "MCG", "Microgram", true).
			AddRow(mg, "MG", "Milligram", true))
	mock.ExpectQuery("FROM unit_of_measure_role WHERE uom_key = ANY").
		WithArgs([]uuid.UUID{mcg, mg}).
		WillReturnRows(pgxmock.NewRows([]string{"uom_key", "role"}).
			AddRow(mg, "DOSE").
			AddRow(mcg, "STRENGTH").
			AddRow(mg, "STRENGTH"))

	role := RoleStrength
	units, err := NewRepo(mock).List(context.Background(), ListFilter{Role: &role, Active: &active})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, []Role{RoleStrength}, units[0].Roles)
	assert.Equal(t, []Role{RoleDose, RoleStrength}, units[1].Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_GetByCode_NotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM unit_of_measure u WHERE u.code = \\$1").
		WithArgs("GTT").
		WillReturnRows(pgxmock.NewRows([]string{"key", "code", "description", "active"}))

	_, err := NewRepo(mock).GetByCode(context.Background(), "GTT")
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}

func TestRepo_UpdateRoles(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM unit_of_measure WHERE key = \\$1 FOR UPDATE").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(key))
	mock.ExpectQuery("SELECT role FROM unit_of_measure_role").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("VOLUME").AddRow("DOSE"))
	mock.ExpectExec("DELETE FROM unit_of_measure_role").
		WithArgs(key, []string{"DOSE"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO unit_of_measure_role").
		WithArgs(key, []string{"TOTAL_VOLUME"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	summary, err := NewRepo(mock).UpdateRoles(context.Background(), key, []Role{RoleVolume, RoleTotalVolume})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Removed: 1}, summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}
