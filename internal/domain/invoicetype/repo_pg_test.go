package invoicetype

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
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

func TestRepo_List(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("FROM invoice_type").
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{"key", "code", "description", "active", "sort_order"}).
			AddRow(uuid.New(), "PURCHASE", "Purchase", true, 1).
			AddRow(uuid.New(), "RETURN", "Return to vendor", true, 2))

	types, err := NewRepo(mock).List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "RETURN", types[1].Code)
	assert.Equal(t, 2, types[1].SortOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectExec("UPDATE invoice_type SET").
		WithArgs(key, "X", "x", true, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewRepo(mock).Update(context.Background(), &InvoiceType{Key: key, Code: "X", Description: "x", Active: true})
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}
