package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testItemID = "0b1f8a44-9f5d-4a7e-94a1-2d8f3c7e6b10"

func newTestLedger(t *testing.T) (*LedgerService, *testutil.MockDB) {
	t.Helper()

	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	publisher, err := events.NewInventoryEventPublisher(nil, log)
	require.NoError(t, err)

	ledger := NewLedgerService(
		db,
		repository.NewItemRepository(db),
		repository.NewBatchRepository(db),
		repository.NewMovementRepository(db),
		publisher,
		log,
	)

	return ledger, mockDB
}

func itemRows(id string, currentStock int, version int64) *sqlmock.Rows {
	now := time.Now()
	return testutil.MockRows(
		"id", "name", "category", "unit", "unit_cost", "min_stock",
		"current_stock", "version", "supplier_id", "is_active", "created_at", "updated_at",
	).AddRow(id, "Paracetamol 500mg", "analgesic", "box", "3.20", 20, currentStock, version, nil, true, now, now)
}

func TestLedgerAppend_DispenseHappyPath(t *testing.T) {
	ledger, mockDB := newTestLedger(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM items WHERE id = $1 FOR UPDATE").
		WithArgs(testItemID).
		WillReturnRows(itemRows(testItemID, 100, 3))
	mockDB.ExpectQuery("INSERT INTO stock_movements").
		WillReturnRows(testutil.MockRows("seq", "created_at").AddRow(int64(7), time.Now()))
	mockDB.ExpectExec("UPDATE items SET current_stock = $2, version = version + 1").
		WithArgs(testItemID, 90).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	movement, err := ledger.Append(context.Background(), MovementInput{
		ItemID:        testItemID,
		Type:          repository.MovementDispense,
		QuantityDelta: -10,
		Actor:         "pharmacist-1",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), movement.Seq)
	assert.Equal(t, -10, movement.QuantityDelta)
	assert.NotEmpty(t, movement.ID)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerAppend_InsufficientStockRollsBack(t *testing.T) {
	ledger, mockDB := newTestLedger(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM items WHERE id = $1 FOR UPDATE").
		WithArgs(testItemID).
		WillReturnRows(itemRows(testItemID, 5, 1))
	mockDB.ExpectRollback()

	_, err := ledger.Append(context.Background(), MovementInput{
		ItemID:        testItemID,
		Type:          repository.MovementDispense,
		QuantityDelta: -10,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerAppend_StaleVersionIsConflict(t *testing.T) {
	ledger, mockDB := newTestLedger(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM items WHERE id = $1 FOR UPDATE").
		WithArgs(testItemID).
		WillReturnRows(itemRows(testItemID, 100, 5))
	mockDB.ExpectRollback()

	expected := int64(4)
	_, err := ledger.Append(context.Background(), MovementInput{
		ItemID:          testItemID,
		Type:            repository.MovementAdjustment,
		QuantityDelta:   -10,
		ReasonCode:      strPtr("loss"),
		ExpectedVersion: &expected,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerAppend_RejectsInvalidInputBeforeTouchingStorage(t *testing.T) {
	ledger, mockDB := newTestLedger(t)
	defer mockDB.Close()

	tests := []struct {
		name  string
		input MovementInput
	}{
		{"zero delta", MovementInput{ItemID: testItemID, Type: repository.MovementDispense, QuantityDelta: 0}},
		{"unknown type", MovementInput{ItemID: testItemID, Type: "transfer", QuantityDelta: 5}},
		{"adjustment without reason", MovementInput{ItemID: testItemID, Type: repository.MovementAdjustment, QuantityDelta: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Append(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}

	// No queries were issued for any of the rejected inputs
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerAppend_UnknownItem(t *testing.T) {
	ledger, mockDB := newTestLedger(t)
	defer mockDB.Close()

	emptyRows := testutil.MockRows(
		"id", "name", "category", "unit", "unit_cost", "min_stock",
		"current_stock", "version", "supplier_id", "is_active", "created_at", "updated_at",
	)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM items WHERE id = $1 FOR UPDATE").
		WithArgs(testItemID).
		WillReturnRows(emptyRows)
	mockDB.ExpectRollback()

	_, err := ledger.Append(context.Background(), MovementInput{
		ItemID:        testItemID,
		Type:          repository.MovementReceipt,
		QuantityDelta: 10,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func strPtr(s string) *string { return &s }
