package repository

import (
	"testing"

	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoLineOrder() *PurchaseOrder {
	return &PurchaseOrder{
		ID:         "order-1",
		SupplierID: "supplier-1",
		Status:     OrderStatusOrdered,
		Lines: []*PurchaseOrderLine{
			{ID: "line-a", OrderID: "order-1", ItemID: "item-a", OrderedQty: 100, UnitPrice: decimal.NewFromFloat(2.50)},
			{ID: "line-b", OrderID: "order-1", ItemID: "item-b", OrderedQty: 50, UnitPrice: decimal.NewFromFloat(10)},
		},
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	assert.True(t, OrderStatusOrdered.CanReceive())
	assert.True(t, OrderStatusPartiallyReceived.CanReceive())
	assert.False(t, OrderStatusReceived.CanReceive())
	assert.False(t, OrderStatusCancelled.CanReceive())

	assert.True(t, OrderStatusReceived.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusOrdered.IsTerminal())
	assert.False(t, OrderStatusPartiallyReceived.IsTerminal())

	assert.False(t, OrderStatus("shipped").IsValid())
}

func TestPurchaseOrder_Total(t *testing.T) {
	order := twoLineOrder()
	// 100 x 2.50 + 50 x 10 = 750
	assert.True(t, order.Total().Equal(decimal.NewFromInt(750)), "total was %s", order.Total())
}

func TestApplyReceipts_FullDelivery(t *testing.T) {
	order := twoLineOrder()

	err := order.ApplyReceipts([]Receipt{
		{LineID: "line-a", Quantity: 100},
		{LineID: "line-b", Quantity: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, OrderStatusReceived, order.Status)
	assert.Equal(t, 0, order.Line("line-a").Remaining())
	assert.Equal(t, 0, order.Line("line-b").Remaining())
}

func TestApplyReceipts_PartialDelivery(t *testing.T) {
	order := twoLineOrder()

	err := order.ApplyReceipts([]Receipt{
		{LineID: "line-a", Quantity: 40},
	})

	require.NoError(t, err)
	assert.Equal(t, OrderStatusPartiallyReceived, order.Status)
	assert.Equal(t, 40, order.Line("line-a").ReceivedQty)
	assert.Equal(t, 0, order.Line("line-b").ReceivedQty)

	// Completing the remainder moves the order to received
	err = order.ApplyReceipts([]Receipt{
		{LineID: "line-a", Quantity: 60},
		{LineID: "line-b", Quantity: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, OrderStatusReceived, order.Status)
}

func TestApplyReceipts_OverReceiptRejectedWithoutPartialApplication(t *testing.T) {
	order := twoLineOrder()

	// line-a is valid, line-b asks for one unit too many
	err := order.ApplyReceipts([]Receipt{
		{LineID: "line-a", Quantity: 100},
		{LineID: "line-b", Quantity: 51},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrState))

	// Nothing was applied, not even the valid line
	assert.Equal(t, 0, order.Line("line-a").ReceivedQty)
	assert.Equal(t, 0, order.Line("line-b").ReceivedQty)
	assert.Equal(t, OrderStatusOrdered, order.Status)
}

func TestApplyReceipts_OverReceiptBoundary(t *testing.T) {
	order := twoLineOrder()
	require.NoError(t, order.ApplyReceipts([]Receipt{{LineID: "line-b", Quantity: 30}}))

	// Exactly the remaining quantity is accepted
	err := order.ApplyReceipts([]Receipt{{LineID: "line-b", Quantity: 20}})
	require.NoError(t, err)
	assert.Equal(t, 50, order.Line("line-b").ReceivedQty)

	// One past ordered is rejected
	err = order.ApplyReceipts([]Receipt{{LineID: "line-a", Quantity: 101}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrState))
}

func TestApplyReceipts_AggregatesDuplicateLineReceipts(t *testing.T) {
	order := twoLineOrder()

	// Two receipts for the same line in one call must be validated
	// against the remaining quantity together, not individually.
	err := order.ApplyReceipts([]Receipt{
		{LineID: "line-b", Quantity: 30},
		{LineID: "line-b", Quantity: 30},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrState))
	assert.Equal(t, 0, order.Line("line-b").ReceivedQty)
}

func TestApplyReceipts_UnknownLine(t *testing.T) {
	order := twoLineOrder()

	err := order.ApplyReceipts([]Receipt{{LineID: "line-x", Quantity: 1}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestApplyReceipts_NonPositiveQuantity(t *testing.T) {
	order := twoLineOrder()

	err := order.ApplyReceipts([]Receipt{{LineID: "line-a", Quantity: 0}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = order.ApplyReceipts([]Receipt{{LineID: "line-a", Quantity: -5}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestApplyReceipts_TerminalOrdersRejectReceipts(t *testing.T) {
	order := twoLineOrder()
	order.Status = OrderStatusCancelled

	err := order.ApplyReceipts([]Receipt{{LineID: "line-a", Quantity: 1}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrState))
}

func TestRecomputeStatus_TerminalStatesArePreserved(t *testing.T) {
	order := twoLineOrder()
	order.Lines[0].ReceivedQty = 40
	order.Status = OrderStatusCancelled

	// A cancelled order with partial receipts stays cancelled; history
	// is frozen, not rewritten.
	assert.Equal(t, OrderStatusCancelled, order.RecomputeStatus())
}

func TestRecomputeStatus_DerivesFromLineState(t *testing.T) {
	order := twoLineOrder()
	assert.Equal(t, OrderStatusOrdered, order.RecomputeStatus())

	order.Lines[0].ReceivedQty = 1
	assert.Equal(t, OrderStatusPartiallyReceived, order.RecomputeStatus())

	order.Lines[0].ReceivedQty = 100
	order.Lines[1].ReceivedQty = 50
	assert.Equal(t, OrderStatusReceived, order.RecomputeStatus())
}
