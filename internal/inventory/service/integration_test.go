package service_test

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error

	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		panic("failed to create integration suite: " + err.Error())
	}
	defer suite.Cleanup(ctx)

	os.Exit(m.Run())
}

type integrationEnv struct {
	itemRepo     *repository.ItemRepository
	movementRepo *repository.MovementRepository
	orderRepo    *repository.OrderRepository
	supplierRepo *repository.SupplierRepository
	ledger       *service.LedgerService
	reconciler   *service.ReconcileService
	orders       *service.OrderService
}

func setupEnv(t *testing.T, ctx context.Context) *integrationEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	require.NoError(t, suite.TruncateAll(ctx))

	log := logger.New("test", "test")
	publisher, err := events.NewInventoryEventPublisher(nil, log)
	require.NoError(t, err)

	itemRepo := repository.NewItemRepository(suite.DB)
	batchRepo := repository.NewBatchRepository(suite.DB)
	movementRepo := repository.NewMovementRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	supplierRepo := repository.NewSupplierRepository(suite.DB)

	ledger := service.NewLedgerService(suite.DB, itemRepo, batchRepo, movementRepo, publisher, log)

	return &integrationEnv{
		itemRepo:     itemRepo,
		movementRepo: movementRepo,
		orderRepo:    orderRepo,
		supplierRepo: supplierRepo,
		ledger:       ledger,
		reconciler:   service.NewReconcileService(itemRepo, ledger, publisher, log),
		orders:       service.NewOrderService(suite.DB, orderRepo, itemRepo, batchRepo, supplierRepo, ledger, publisher, log),
	}
}

func createItem(t *testing.T, ctx context.Context, stock int) *testutil.ItemFixture {
	t.Helper()
	item := suite.Fixtures.Item()
	item.CurrentStock = stock
	require.NoError(t, suite.Fixtures.InsertItem(ctx, suite.RawDB, item))
	return item
}

// The replay invariant: after any mix of movements, the sum of ledger
// deltas equals the cached balance.
func TestLedger_ReplayInvariant(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)
	item := createItem(t, ctx, 0)

	steps := []struct {
		movementType string
		delta        int
		reason       string
	}{
		{repository.MovementReceipt, 100, ""},
		{repository.MovementDispense, -30, ""},
		{repository.MovementDispense, -15, ""},
		{repository.MovementAdjustment, -5, "damage"},
		{repository.MovementReturn, 10, ""},
	}

	for _, step := range steps {
		input := service.MovementInput{
			ItemID:        item.ID,
			Type:          step.movementType,
			QuantityDelta: step.delta,
			Actor:         "tester",
		}
		if step.reason != "" {
			reason := step.reason
			input.ReasonCode = &reason
		}
		_, err := env.ledger.Append(ctx, input)
		require.NoError(t, err)
	}

	check, err := env.ledger.VerifyBalance(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 60, check.CachedBalance)
	assert.Equal(t, 60, check.LedgerBalance)
}

func TestLedger_SequenceIsMonotonicPerItem(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)
	item := createItem(t, ctx, 0)

	for i := 0; i < 5; i++ {
		_, err := env.ledger.Append(ctx, service.MovementInput{
			ItemID:        item.ID,
			Type:          repository.MovementReceipt,
			QuantityDelta: 10,
			Actor:         "tester",
		})
		require.NoError(t, err)
	}

	movements, total, err := env.ledger.ListMovements(ctx, item.ID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	// Listed newest first: seq 5 down to 1 with no gaps
	for i, m := range movements {
		assert.Equal(t, int64(5-i), m.Seq)
	}
}

func TestLedger_RejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)
	item := createItem(t, ctx, 5)

	_, err := env.ledger.Append(ctx, service.MovementInput{
		ItemID:        item.ID,
		Type:          repository.MovementDispense,
		QuantityDelta: -10,
		Actor:         "tester",
	})

	require.Error(t, err)

	// The failed append left no trace
	check, verr := env.ledger.VerifyBalance(ctx, item.ID)
	require.NoError(t, verr)
	assert.Equal(t, 5, check.CachedBalance)
	assert.Equal(t, int64(0), mustCount(t, ctx, item.ID))
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func mustCount(t *testing.T, ctx context.Context, itemID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, suite.RawDB.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM stock_movements WHERE item_id = $1`, itemID))
	return count
}

// Counting the same true quantity twice: first call adjusts, second is a
// no-op and adds nothing to history.
func TestReconcile_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)
	item := createItem(t, ctx, 50)

	first, err := env.reconciler.Reconcile(ctx, item.ID, 44, "damage", "auditor")
	require.NoError(t, err)
	assert.False(t, first.NoOp)
	assert.Equal(t, -6, first.Movement.QuantityDelta)
	assert.Equal(t, 44, first.Balance)

	second, err := env.reconciler.Reconcile(ctx, item.ID, 44, "damage", "auditor")
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Nil(t, second.Movement)

	assert.Equal(t, int64(1), mustCount(t, ctx, item.ID))
}

func TestOrderLifecycle_ReceiveInStagesThenVerify(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)

	supplier := suite.Fixtures.Supplier()
	require.NoError(t, suite.Fixtures.InsertSupplier(ctx, suite.RawDB, supplier))

	item := createItem(t, ctx, 0)
	itemB := createItem(t, ctx, 0)

	order, err := env.orders.Create(ctx, supplier.ID, []*repository.PurchaseOrderLine{
		{ItemID: item.ID, OrderedQty: 100, UnitPrice: decimalFromString(t, "2.50")},
		{ItemID: itemB.ID, OrderedQty: 50, UnitPrice: decimalFromString(t, "10")},
	}, "buyer")
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusOrdered, order.Status)

	// Partial receipt
	lineA, lineB := order.Lines[0], order.Lines[1]
	order, err = env.orders.Receive(ctx, order.ID, []repository.Receipt{
		{LineID: lineA.ID, Quantity: 40},
	}, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusPartiallyReceived, order.Status)

	// Stock moved with the order state
	got, err := env.itemRepo.GetByID(ctx, lineA.ItemID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.CurrentStock)

	// Completing both lines closes the order
	order, err = env.orders.Receive(ctx, order.ID, []repository.Receipt{
		{LineID: lineA.ID, Quantity: 60},
		{LineID: lineB.ID, Quantity: 50},
	}, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusReceived, order.Status)

	// Every receipt movement points back at the order
	movements, _, err := env.ledger.ListMovements(ctx, lineA.ItemID, 1, 10)
	require.NoError(t, err)
	for _, m := range movements {
		require.NotNil(t, m.RelatedOrderID)
		assert.Equal(t, order.ID, *m.RelatedOrderID)
	}
}

func TestOrderReceive_OverReceiptLeavesEverythingUntouched(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)

	supplier := suite.Fixtures.Supplier()
	require.NoError(t, suite.Fixtures.InsertSupplier(ctx, suite.RawDB, supplier))
	item := createItem(t, ctx, 0)

	order, err := env.orders.Create(ctx, supplier.ID, []*repository.PurchaseOrderLine{
		{ItemID: item.ID, OrderedQty: 10, UnitPrice: decimalFromString(t, "1")},
	}, "buyer")
	require.NoError(t, err)

	_, err = env.orders.Receive(ctx, order.ID, []repository.Receipt{
		{LineID: order.Lines[0].ID, Quantity: 11},
	}, "warehouse")
	require.Error(t, err)

	// No movements, no stock, order still fresh
	assert.Equal(t, int64(0), mustCount(t, ctx, item.ID))
	reloaded, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusOrdered, reloaded.Status)
	assert.Equal(t, 0, reloaded.Lines[0].ReceivedQty)
}

// Scenario: cancelling after a partial receipt freezes the order but
// keeps both the movements and the stock.
func TestOrderCancel_AfterPartialReceiptKeepsHistory(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, ctx)

	supplier := suite.Fixtures.Supplier()
	require.NoError(t, suite.Fixtures.InsertSupplier(ctx, suite.RawDB, supplier))
	item := createItem(t, ctx, 0)

	order, err := env.orders.Create(ctx, supplier.ID, []*repository.PurchaseOrderLine{
		{ItemID: item.ID, OrderedQty: 100, UnitPrice: decimalFromString(t, "2")},
	}, "buyer")
	require.NoError(t, err)

	_, err = env.orders.Receive(ctx, order.ID, []repository.Receipt{
		{LineID: order.Lines[0].ID, Quantity: 40},
	}, "warehouse")
	require.NoError(t, err)

	cancelled, err := env.orders.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusCancelled, cancelled.Status)

	// Stock and ledger history survive the cancellation
	got, err := env.itemRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.CurrentStock)
	assert.Equal(t, int64(1), mustCount(t, ctx, item.ID))

	// And the frozen order rejects both receipts and a second cancel
	_, err = env.orders.Receive(ctx, order.ID, []repository.Receipt{
		{LineID: order.Lines[0].ID, Quantity: 1},
	}, "warehouse")
	require.Error(t, err)
	_, err = env.orders.Cancel(ctx, order.ID)
	require.Error(t, err)
}
