package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/shopspring/decimal"
)

// Movement types
const (
	MovementDispense   = "dispense"
	MovementReceipt    = "receipt"
	MovementAdjustment = "adjustment"
	MovementReturn     = "return"
)

// ValidMovementType reports whether t is a known movement type
func ValidMovementType(t string) bool {
	switch t {
	case MovementDispense, MovementReceipt, MovementAdjustment, MovementReturn:
		return true
	}
	return false
}

// StockMovement is one immutable entry of the stock ledger. Rows are
// never updated or deleted; Seq is a per-item monotonic sequence that
// gives a strict order within an item.
type StockMovement struct {
	ID             string           `db:"id" json:"id"`
	ItemID         string           `db:"item_id" json:"item_id"`
	BatchID        *string          `db:"batch_id" json:"batch_id,omitempty"`
	Seq            int64            `db:"seq" json:"seq"`
	Type           string           `db:"type" json:"type"`
	QuantityDelta  int              `db:"quantity_delta" json:"quantity_delta"`
	UnitCost       *decimal.Decimal `db:"unit_cost" json:"unit_cost,omitempty"`
	Actor          string           `db:"actor" json:"actor"`
	ReasonCode     *string          `db:"reason_code" json:"reason_code,omitempty"`
	RelatedOrderID *string          `db:"related_order_id" json:"related_order_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// MonthlyConsumption is one calendar-month bucket of dispense magnitudes
type MonthlyConsumption struct {
	Month    time.Time `db:"month" json:"month"`
	Quantity int       `db:"quantity" json:"quantity"`
}

// CategoryConsumption is the dispense magnitude aggregated per category
type CategoryConsumption struct {
	Category string `db:"category" json:"category"`
	Quantity int    `db:"quantity" json:"quantity"`
}

// MovementRepository handles stock movement persistence
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// InsertTx appends a movement inside a ledger transaction. The per-item
// sequence is assigned here; the caller must hold the item row lock so
// two writers cannot claim the same seq.
func (r *MovementRepository) InsertTx(tx *sqlx.Tx, m *StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, item_id, batch_id, seq, type, quantity_delta, unit_cost, actor, reason_code, related_order_id
		) VALUES (
			$1, $2, $3,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM stock_movements WHERE item_id = $2),
			$4, $5, $6, $7, $8, $9
		)
		RETURNING seq, created_at
	`

	return tx.QueryRowx(query,
		m.ID, m.ItemID, m.BatchID, m.Type, m.QuantityDelta,
		m.UnitCost, m.Actor, m.ReasonCode, m.RelatedOrderID,
	).Scan(&m.Seq, &m.CreatedAt)
}

// ListByItem lists movements for an item, newest first, with pagination
func (r *MovementRepository) ListByItem(ctx context.Context, itemID string, page, perPage int) ([]*StockMovement, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_movements WHERE item_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, itemID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	var movements []*StockMovement
	query := `
		SELECT * FROM stock_movements
		WHERE item_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &movements, query, itemID, perPage, offset); err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}

// SumDeltas replays the ledger for an item: the sum of all deltas must
// equal the cached balance at any point in time.
func (r *MovementRepository) SumDeltas(ctx context.Context, itemID string) (int, error) {
	var sum sql.NullInt64
	query := `SELECT SUM(quantity_delta) FROM stock_movements WHERE item_id = $1`
	if err := r.db.GetContext(ctx, &sum, query, itemID); err != nil {
		return 0, err
	}
	if !sum.Valid {
		return 0, nil
	}
	return int(sum.Int64), nil
}

// MonthlyDispenseByItem buckets dispense magnitudes by calendar month
// since the given time. Months without movements are absent; the
// forecast engine zero-fills the gaps.
func (r *MovementRepository) MonthlyDispenseByItem(ctx context.Context, itemID string, since time.Time) ([]*MonthlyConsumption, error) {
	var series []*MonthlyConsumption
	query := `
		SELECT date_trunc('month', created_at) AS month, SUM(-quantity_delta) AS quantity
		FROM stock_movements
		WHERE item_id = $1 AND type = 'dispense' AND created_at >= $2
		GROUP BY 1
		ORDER BY 1
	`
	if err := r.db.SelectContext(ctx, &series, query, itemID, since); err != nil {
		return nil, err
	}
	return series, nil
}

// MonthlyDispenseByCategory buckets dispense magnitudes across all items
// of a category (all categories when empty).
func (r *MovementRepository) MonthlyDispenseByCategory(ctx context.Context, category string, since time.Time) ([]*MonthlyConsumption, error) {
	var series []*MonthlyConsumption
	query := `
		SELECT date_trunc('month', m.created_at) AS month, SUM(-m.quantity_delta) AS quantity
		FROM stock_movements m
		JOIN items i ON i.id = m.item_id
		WHERE m.type = 'dispense' AND m.created_at >= $1
	`
	args := []interface{}{since}
	if category != "" {
		query += ` AND i.category = $2`
		args = append(args, category)
	}
	query += ` GROUP BY 1 ORDER BY 1`

	if err := r.db.SelectContext(ctx, &series, query, args...); err != nil {
		return nil, err
	}
	return series, nil
}

// DispenseByCategory aggregates dispense magnitudes per category since
// the given time, for the analytics distribution.
func (r *MovementRepository) DispenseByCategory(ctx context.Context, since time.Time) ([]*CategoryConsumption, error) {
	var rows []*CategoryConsumption
	query := `
		SELECT i.category AS category, SUM(-m.quantity_delta) AS quantity
		FROM stock_movements m
		JOIN items i ON i.id = m.item_id
		WHERE m.type = 'dispense' AND m.created_at >= $1
		GROUP BY i.category
		ORDER BY i.category
	`
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, err
	}
	return rows, nil
}
