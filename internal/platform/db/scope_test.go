package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchemaName(t *testing.T) {
	for _, ok := range []string{"dispensing", "_x", "site_42"} {
		assert.NoError(t, ValidateSchemaName(ok), ok)
	}
	for _, bad := range []string{"", "Dispensing", "1abc", "a;drop", "a b", "a-b"} {
		assert.Error(t, ValidateSchemaName(bad), bad)
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	ctx, tx, err := WithTx(context.Background())
	assert.ErrorIs(t, err, ErrNoConn)
	assert.EqualError(t, err, "no database connection in context")
	assert.Nil(t, tx)
	assert.Nil(t, TxFromContext(ctx))
}

func TestFromContext_Empty(t *testing.T) {
	assert.Nil(t, ConnFromContext(context.Background()))
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestExecutor_PrefersAmbientTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	assert.Equal(t, DB(mock), Executor(context.Background(), mock))

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), DBTxKey, tx)
	assert.Equal(t, DB(tx), Executor(ctx, mock))
}

func TestRunInTx_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO kit").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = RunInTx(context.Background(), mock, func(ctx context.Context) error {
		require.NotNil(t, TxFromContext(ctx))
		_, err := Executor(ctx, mock).Exec(ctx, "INSERT INTO kit (name) VALUES ($1)", "crash cart")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	want := errors.New("child insert failed")
	err = RunInTx(context.Background(), mock, func(ctx context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollbackOnPanic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = RunInTx(context.Background(), mock, func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_CommitFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err = RunInTx(context.Background(), mock, func(ctx context.Context) error { return nil })
	assert.ErrorContains(t, err, "commit transaction")
}

func TestRunInTx_JoinsAmbientTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	outer := context.WithValue(context.Background(), DBTxKey, tx)

	// no second Begin and no Commit: the outer scope owns the outcome
	err = RunInTx(outer, mock, func(ctx context.Context) error {
		assert.Equal(t, tx, TxFromContext(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err = RunInTx(context.Background(), mock, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "begin transaction")
	assert.False(t, called)
}

func TestHealthHandler(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM goose_db_version").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(int64(4)))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	require.NoError(t, HealthHandler(mock, "dispensing", nil)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"schema_version":4`)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM goose_db_version").WillReturnError(errors.New("relation does not exist"))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	require.NoError(t, HealthHandler(mock, "dispensing", nil)(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}
