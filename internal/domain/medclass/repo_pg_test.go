package medclass

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

func TestRepo_List_JoinsMembers(t *testing.T) {
	mock := newMock(t)
	g1, g2 := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM med_class_group ORDER BY code").
		WillReturnRows(pgxmock.NewRows([]string{"key", "code", "description"}).
			AddRow(g1, "BENZO", "Benzodiazepines").
			AddRow(g2, "OPIOID", "Opioids"))
	mock.ExpectQuery("FROM med_class_group_member").
		WithArgs([]uuid.UUID{g1, g2}).
		WillReturnRows(pgxmock.NewRows([]string{"group_key", "class_code"}).
			AddRow(g2, "N02AA").
			AddRow(g1, "N05BA").
			AddRow(g2, "N02AB"))

	groups, err := NewRepo(mock).List(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"N05BA"}, groups[0].ClassCodes)
	assert.Equal(t, []string{"N02AA", "N02AB"}, groups[1].ClassCodes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_GetByCode_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("FROM med_class_group WHERE code = \\$1").
		WithArgs("NOPE").
		WillReturnRows(pgxmock.NewRows([]string{"key", "code", "description"}))

	_, err := NewRepo(mock).GetByCode(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}

func TestRepo_UpdateClassCodes_Diff(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM med_class_group WHERE key = \\$1 FOR UPDATE").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(key))
	mock.ExpectQuery("SELECT class_code FROM med_class_group_member").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"class_code"}).AddRow("N02AA").AddRow("N02AB"))
	mock.ExpectExec("DELETE FROM med_class_group_member").
		WithArgs(key, []string{"N02AA"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO med_class_group_member").
		WithArgs(key, []string{"N02AE"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	summary, err := NewRepo(mock).UpdateClassCodes(context.Background(), key, []string{"N02AB", "N02AE"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Removed: 1}, summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateClassCodes_UnknownGroup(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM med_class_group WHERE key = \\$1 FOR UPDATE").
		WithArgs(key).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewRepo(mock).UpdateClassCodes(context.Background(), key, []string{"N02AA"})
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
