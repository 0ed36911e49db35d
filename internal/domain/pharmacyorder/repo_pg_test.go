package pharmacyorder

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

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

var orderCols = []string{"key", "facility_key", "encounter_key", "order_id", "status",
	"description", "prn", "start_utc", "stop_utc"}

func TestRepo_ListByEncounters_JoinsChildren(t *testing.T) {
	mock := newMock(t)
	facility, enc1, enc2 := uuid.New(), uuid.New(), uuid.New()
	o1, o2 := uuid.New(), uuid.New()
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	var noTime *time.Time
	var noText *string
	var noKey *uuid.UUID
	var noNum *float64

	mock.ExpectQuery("FROM pharmacy_order\\s+WHERE encounter_key = ANY").
		WithArgs([]uuid.UUID{enc1, enc2}).
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow(o1, facility, enc1, "RX-1", "ACTIVE", "Amoxicillin", false, &start, noTime).
			AddRow(o2, facility, enc2, "RX-2", "PENDING", "Paracetamol", true, noTime, noTime))
	mock.ExpectQuery("FROM pharmacy_order_route WHERE order_key = ANY").
		WithArgs([]uuid.UUID{o1, o2}).
		WillReturnRows(pgxmock.NewRows([]string{"order_key", "route_code", "description"}).
			AddRow(o1, "PO", noText).
			AddRow(o2, "PO", noText).
			AddRow(o2, "PR", strPtr("Rectal")))
	mock.ExpectQuery("FROM pharmacy_order_component WHERE order_key = ANY").
		WithArgs([]uuid.UUID{o1, o2}).
		WillReturnRows(pgxmock.NewRows([]string{"order_key", "key", "item_id", "description",
			"strength", "strength_uom_key", "volume", "volume_uom_key"}).
			AddRow(o1, uuid.New(), "AMOX500", "Amoxicillin 500 mg", floatPtr(500), keyPtr(uuid.New()), noNum, noKey))
	mock.ExpectQuery("FROM pharmacy_order_timing WHERE order_key = ANY").
		WithArgs([]uuid.UUID{o1, o2}).
		WillReturnRows(pgxmock.NewRows([]string{"order_key", "key", "repeat_pattern_key", "frequency_text",
			"start_utc", "end_utc", "administration_times"}).
			AddRow(o1, uuid.New(), noKey, strPtr("TID"), noTime, noTime, []string{"08:00", "14:00", "22:00"}))
	mock.ExpectQuery("FROM pharmacy_order_instruction WHERE order_key = ANY").
		WithArgs([]uuid.UUID{o1, o2}).
		WillReturnRows(pgxmock.NewRows([]string{"order_key", "key", "instruction_type", "text"}).
			AddRow(o2, uuid.New(), "NURSE", "Max 4 g per day"))

	orders, err := NewRepo(mock).ListByEncounters(context.Background(), []uuid.UUID{enc1, enc2})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, StatusActive, orders[0].Status)
	assert.Len(t, orders[0].Routes, 1)
	assert.Len(t, orders[1].Routes, 2)
	require.Len(t, orders[0].Components, 1)
	assert.Equal(t, 500.0, *orders[0].Components[0].Strength)
	assert.Equal(t, []string{"08:00", "14:00", "22:00"}, orders[0].Timings[0].AdministrationTimes)
	require.Len(t, orders[1].Instructions, 1)
	assert.Equal(t, InstructionNurse, orders[1].Instructions[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_ListByEncounters_Empty(t *testing.T) {
	mock := newMock(t)
	orders, err := NewRepo(mock).ListByEncounters(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Get_UnknownStatusIsError(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	var noTime *time.Time

	mock.ExpectQuery("FROM pharmacy_order WHERE key = \\$1").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow(key, uuid.New(), uuid.New(), "RX-1", "DRAFT", "x", false, noTime, noTime))

	_, err := NewRepo(mock).Get(context.Background(), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown order status code")
}

func TestRepo_Create_WritesChildrenInTx(t *testing.T) {
	mock := newMock(t)
	o := &Order{
		FacilityKey:  uuid.New(),
		EncounterKey: uuid.New(),
		OrderID:      "RX-1",
		Status:       StatusPending,
		Description:  "Paracetamol",
		Routes:       []Route{{Code: "PO"}, {Code: "PR", Description: strPtr("Rectal")}},
		Instructions: []Instruction{{Type: InstructionNurse, Text: "Max 4 g per day"}},
	}
	var noTime *time.Time

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pharmacy_order ").
		WithArgs(pgxmock.AnyArg(), o.FacilityKey, o.EncounterKey, "RX-1", "PENDING", "Paracetamol", false, noTime, noTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO pharmacy_order_route").
		WithArgs(pgxmock.AnyArg(), []string{"PO", "PR"}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO pharmacy_order_instruction").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "NURSE", "Max 4 g per day").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewRepo(mock).Create(context.Background(), o))
	assert.NotEqual(t, uuid.Nil, o.Key)
	assert.NotEqual(t, uuid.Nil, o.Instructions[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Update_DiffsRoutesByCode(t *testing.T) {
	mock := newMock(t)
	key, facility, encounter := uuid.New(), uuid.New(), uuid.New()
	instr := uuid.New()
	var noTime *time.Time
	var noText *string

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE pharmacy_order SET").
		WithArgs(key, "Paracetamol", true, noTime, noTime).
		WillReturnRows(pgxmock.NewRows([]string{"facility_key", "encounter_key", "order_id", "status"}).
			AddRow(facility, encounter, "RX-1", "VERIFIED"))
	mock.ExpectQuery("SELECT route_code FROM pharmacy_order_route").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"route_code"}).AddRow("PO").AddRow("PR"))
	mock.ExpectExec("DELETE FROM pharmacy_order_route").
		WithArgs(key, []string{"PR"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("UPDATE pharmacy_order_route SET description").
		WithArgs(key, "PO", noText).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO pharmacy_order_route").
		WithArgs(key, []string{"IV"}, []*string{noText}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT key FROM pharmacy_order_component").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key"}))
	mock.ExpectQuery("SELECT key FROM pharmacy_order_timing").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key"}))
	mock.ExpectQuery("SELECT key FROM pharmacy_order_instruction").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(instr))
	mock.ExpectExec("DELETE FROM pharmacy_order_instruction").
		WithArgs(key, []uuid.UUID{instr}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	o := &Order{Key: key, Description: "Paracetamol", PRN: true, Routes: []Route{{Code: "PO"}, {Code: "IV"}}}
	changes, err := NewRepo(mock).Update(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Added: 1, Updated: 1, Removed: 1}, changes.Routes)
	assert.Equal(t, reconcile.Summary{Removed: 1}, changes.Instructions)
	assert.Equal(t, StatusVerified, o.Status)
	assert.Equal(t, "RX-1", o.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Update_TerminalOrderIsNotRewritten(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	var noTime *time.Time

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)UPDATE pharmacy_order SET .*status NOT IN").
		WithArgs(key, "Paracetamol", false, noTime, noTime).
		WillReturnRows(pgxmock.NewRows([]string{"facility_key", "encounter_key", "order_id", "status"}))
	mock.ExpectQuery("SELECT order_id, status FROM pharmacy_order").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"order_id", "status"}).AddRow("RX-1", "DISCONTINUED"))
	mock.ExpectRollback()

	o := &Order{Key: key, Description: "Paracetamol", Routes: []Route{{Code: "PO"}}}
	_, err := NewRepo(mock).Update(context.Background(), o)
	requireStatus(t, err, http.StatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()
	var noTime *time.Time

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE pharmacy_order SET").
		WithArgs(key, "Paracetamol", false, noTime, noTime).
		WillReturnRows(pgxmock.NewRows([]string{"facility_key", "encounter_key", "order_id", "status"}))
	mock.ExpectQuery("SELECT order_id, status FROM pharmacy_order").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"order_id", "status"}))
	mock.ExpectRollback()

	_, err := NewRepo(mock).Update(context.Background(), &Order{Key: key, Description: "Paracetamol"})
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateStatus_Conflict(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectExec("UPDATE pharmacy_order SET status").
		WithArgs(key, "VERIFIED", "ACTIVE").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewRepo(mock).UpdateStatus(context.Background(), key, StatusVerified, StatusActive)
	assert.True(t, errors.Is(err, sqlerr.ErrConcurrency))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateStatus_NotFound(t *testing.T) {
	mock := newMock(t)
	key := uuid.New()

	mock.ExpectExec("UPDATE pharmacy_order SET status").
		WithArgs(key, "VERIFIED", "ACTIVE").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := NewRepo(mock).UpdateStatus(context.Background(), key, StatusVerified, StatusActive)
	assert.True(t, errors.Is(err, sqlerr.ErrNotFound))
}
