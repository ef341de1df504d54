package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// Batch represents one lot of an item sharing a single expiry date
type Batch struct {
	ID         string    `db:"id" json:"id"`
	ItemID     string    `db:"item_id" json:"item_id"`
	LotNumber  string    `db:"lot_number" json:"lot_number"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiry_date"`
	Quantity   int       `db:"quantity" json:"quantity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateTx creates a batch inside a receive transaction
func (r *BatchRepository) CreateTx(tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batches (id, item_id, lot_number, expiry_date, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return tx.QueryRowx(query,
		batch.ID, batch.ItemID, batch.LotNumber, batch.ExpiryDate, batch.Quantity,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("batch", id)
		}
		return nil, err
	}
	return &batch, nil
}

// GetForUpdateTx gets a batch by ID with a row lock
func (r *BatchRepository) GetForUpdateTx(tx *sqlx.Tx, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1 FOR UPDATE`
	if err := tx.Get(&batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("batch", id)
		}
		return nil, err
	}
	return &batch, nil
}

// UpdateQuantityTx writes a batch quantity inside a ledger transaction
func (r *BatchRepository) UpdateQuantityTx(tx *sqlx.Tx, id string, newQuantity int) error {
	query := `UPDATE batches SET quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.Exec(query, id, newQuantity)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFoundID("batch", id)
	}

	return nil
}

// ListByItem lists batches for an item, soonest expiry first
func (r *BatchRepository) ListByItem(ctx context.Context, itemID string) ([]*Batch, error) {
	var batches []*Batch
	query := `SELECT * FROM batches WHERE item_id = $1 ORDER BY expiry_date`
	if err := r.db.SelectContext(ctx, &batches, query, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetExpiringWithin gets stocked batches expiring within the given days,
// expired batches included
func (r *BatchRepository) GetExpiringWithin(ctx context.Context, days int) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE quantity > 0 AND expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query, days); err != nil {
		return nil, err
	}
	return batches, nil
}
