package dispensingsystem

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRepo_ListByFacility_JoinsContacts(t *testing.T) {
	mock := newMock(t)
	facility := uuid.New()
	s1, s2 := uuid.New(), uuid.New()
	var noText *string

	mock.ExpectQuery("FROM dispensing_system WHERE facility_key = \\$1").
		WithArgs(facility).
		WillReturnRows(pgxmock.NewRows([]string{"key", "facility_key", "name", "server_address", "sync_enabled",
			"outdate_tracking_enabled", "auto_resolve_discrepancies", "default_printer"}).
			AddRow(s1, facility, "Main", "disp01", true, false, false, noText).
			AddRow(s2, facility, "OR", "disp02", true, true, false, strPtr("OR-LASER")))
	mock.ExpectQuery("FROM dispensing_system_contact WHERE system_key = ANY").
		WithArgs([]uuid.UUID{s1, s2}).
		WillReturnRows(pgxmock.NewRows([]string{"key", "system_key", "full_name", "phone", "email", "role_text"}).
			AddRow(uuid.New(), s2, "Kari", noText, strPtr("kari@hospital.local"), noText))

	systems, err := NewRepo(mock).ListByFacility(context.Background(), facility)
	require.NoError(t, err)
	require.Len(t, systems, 2)
	assert.Empty(t, systems[0].Contacts)
	require.Len(t, systems[1].Contacts, 1)
	assert.Equal(t, "OR-LASER", *systems[1].DefaultPrinter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateContacts_UnknownSystem(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key FROM dispensing_system WHERE key = \\$1 FOR UPDATE").
		WithArgs(key).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewRepo(mock).UpdateContacts(context.Background(), key, nil)
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	var noText *string

	mock.ExpectQuery("UPDATE dispensing_system SET").
		WithArgs(key, "Main", "disp01", true, false, false, noText).
		WillReturnRows(pgxmock.NewRows([]string{"facility_key"}))

	err := NewRepo(mock).Update(context.Background(), &System{Key: key, Name: "Main", ServerAddress: "disp01", SyncEnabled: true})
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}
