package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// OrderStatus is the closed set of purchase order states. Status is
// always derived from line state by RecomputeStatus, never assigned
// directly outside the transition methods.
type OrderStatus string

const (
	OrderStatusOrdered           OrderStatus = "ordered"
	OrderStatusPartiallyReceived OrderStatus = "partially_received"
	OrderStatusReceived          OrderStatus = "received"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// IsValid reports whether the status is a known OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusOrdered, OrderStatusPartiallyReceived, OrderStatusReceived, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusReceived || s == OrderStatusCancelled
}

// CanReceive reports whether receipts may be posted in this status
func (s OrderStatus) CanReceive() bool {
	return s == OrderStatusOrdered || s == OrderStatusPartiallyReceived
}

// PurchaseOrderLine is one ordered item on a purchase order.
// ReceivedQty is non-decreasing and never exceeds OrderedQty.
type PurchaseOrderLine struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	ItemID      string          `db:"item_id" json:"item_id"`
	OrderedQty  int             `db:"ordered_qty" json:"ordered_qty"`
	ReceivedQty int             `db:"received_qty" json:"received_qty"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Remaining returns the quantity still expected on this line
func (l *PurchaseOrderLine) Remaining() int {
	return l.OrderedQty - l.ReceivedQty
}

// Amount returns orderedQty x unitPrice
func (l *PurchaseOrderLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.OrderedQty)))
}

// PurchaseOrder is an order with its lines. Total is computed, never stored.
type PurchaseOrder struct {
	ID         string               `db:"id" json:"id"`
	SupplierID string               `db:"supplier_id" json:"supplier_id"`
	Status     OrderStatus          `db:"status" json:"status"`
	CreatedBy  string               `db:"created_by" json:"created_by"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time            `db:"updated_at" json:"updated_at"`
	Lines      []*PurchaseOrderLine `db:"-" json:"lines"`
}

// Total returns the order total over all lines
func (o *PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Amount())
	}
	return total
}

// Line returns the line with the given ID, or nil
func (o *PurchaseOrder) Line(lineID string) *PurchaseOrderLine {
	for _, line := range o.Lines {
		if line.ID == lineID {
			return line
		}
	}
	return nil
}

// RecomputeStatus derives the order status from line state. Terminal
// states are preserved; an order never leaves cancelled or received.
func (o *PurchaseOrder) RecomputeStatus() OrderStatus {
	if o.Status.IsTerminal() {
		return o.Status
	}

	complete := 0
	started := 0
	for _, line := range o.Lines {
		if line.ReceivedQty >= line.OrderedQty {
			complete++
		}
		if line.ReceivedQty > 0 {
			started++
		}
	}

	switch {
	case len(o.Lines) > 0 && complete == len(o.Lines):
		return OrderStatusReceived
	case started > 0:
		return OrderStatusPartiallyReceived
	default:
		return OrderStatusOrdered
	}
}

// Receipt is one requested line receipt. Lot number and expiry, when
// present together, register the received quantity as a new batch.
type Receipt struct {
	LineID     string     `json:"line_id" validate:"required"`
	Quantity   int        `json:"quantity" validate:"required,gt=0"`
	LotNumber  string     `json:"lot_number,omitempty"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// ApplyReceipts validates and applies a set of receipts to the order's
// lines, then recomputes the status. The call is all-or-nothing: any
// invalid receipt rejects the whole set and the order is untouched.
func (o *PurchaseOrder) ApplyReceipts(receipts []Receipt) error {
	if !o.Status.CanReceive() {
		return errors.State(fmt.Sprintf("order %s is %s and cannot receive", o.ID, o.Status))
	}

	// Validate everything before touching any line
	requested := make(map[string]int, len(receipts))
	for _, r := range receipts {
		line := o.Line(r.LineID)
		if line == nil {
			return errors.NotFoundID("order line", r.LineID)
		}
		if r.Quantity <= 0 {
			return errors.Validation(map[string]string{"quantity": "must be positive"})
		}
		requested[r.LineID] += r.Quantity
	}
	for lineID, qty := range requested {
		line := o.Line(lineID)
		if qty > line.Remaining() {
			return errors.State(fmt.Sprintf(
				"over-receipt on line %s: requested %d, remaining %d", lineID, qty, line.Remaining(),
			))
		}
	}

	for lineID, qty := range requested {
		o.Line(lineID).ReceivedQty += qty
	}
	o.Status = o.RecomputeStatus()

	return nil
}

// OrderRepository handles purchase order persistence
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateTx inserts an order with its lines in one transaction
func (r *OrderRepository) CreateTx(tx *sqlx.Tx, order *PurchaseOrder) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	query := `
		INSERT INTO purchase_orders (id, supplier_id, status, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRowx(query,
		order.ID, order.SupplierID, order.Status, order.CreatedBy,
	).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO purchase_order_lines (id, order_id, item_id, ordered_qty, received_qty, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, line := range order.Lines {
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		line.OrderID = order.ID
		if _, err := tx.Exec(lineQuery,
			line.ID, line.OrderID, line.ItemID, line.OrderedQty, line.ReceivedQty, line.UnitPrice,
		); err != nil {
			return err
		}
	}

	return nil
}

// GetByID gets an order with its lines
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	var order PurchaseOrder
	query := `SELECT id, supplier_id, status, created_by, created_at, updated_at FROM purchase_orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("order", id)
		}
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &order.Lines,
		`SELECT * FROM purchase_order_lines WHERE order_id = $1 ORDER BY id`, id); err != nil {
		return nil, err
	}

	return &order, nil
}

// GetForUpdateTx gets an order with its lines, locking the order row so
// concurrent receives and cancels on the same order serialize.
func (r *OrderRepository) GetForUpdateTx(tx *sqlx.Tx, id string) (*PurchaseOrder, error) {
	var order PurchaseOrder
	query := `SELECT id, supplier_id, status, created_by, created_at, updated_at FROM purchase_orders WHERE id = $1 FOR UPDATE`
	if err := tx.Get(&order, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("order", id)
		}
		return nil, err
	}

	if err := tx.Select(&order.Lines,
		`SELECT * FROM purchase_order_lines WHERE order_id = $1 ORDER BY id`, id); err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateLineReceivedTx writes a line's received quantity inside a receive transaction
func (r *OrderRepository) UpdateLineReceivedTx(tx *sqlx.Tx, lineID string, receivedQty int) error {
	query := `UPDATE purchase_order_lines SET received_qty = $2 WHERE id = $1`
	result, err := tx.Exec(query, lineID, receivedQty)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFoundID("order line", lineID)
	}

	return nil
}

// UpdateStatusTx writes the derived order status. Must run after the
// corresponding ledger writes in the same transaction, never before.
func (r *OrderRepository) UpdateStatusTx(tx *sqlx.Tx, orderID string, status OrderStatus) error {
	query := `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.Exec(query, orderID, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFoundID("order", orderID)
	}

	return nil
}

// List lists orders, newest first, optionally filtered by status
func (r *OrderRepository) List(ctx context.Context, status OrderStatus, page, perPage int) ([]*PurchaseOrder, int64, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = `WHERE status = $1`
		args = append(args, status)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM purchase_orders `+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	args = append(args, perPage, offset)
	query := fmt.Sprintf(
		`SELECT id, supplier_id, status, created_by, created_at, updated_at
		 FROM purchase_orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)

	var orders []*PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}

	for _, order := range orders {
		if err := r.db.SelectContext(ctx, &order.Lines,
			`SELECT * FROM purchase_order_lines WHERE order_id = $1 ORDER BY id`, order.ID); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}
