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

// Item represents a catalog item with its cached stock balance.
// CurrentStock is derived from the movement ledger and is only written
// inside ledger transactions; Version is the optimistic concurrency stamp
// bumped on every balance write.
type Item struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Category     string          `db:"category" json:"category"`
	Unit         string          `db:"unit" json:"unit"`
	UnitCost     decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	MinStock     int             `db:"min_stock" json:"min_stock"`
	CurrentStock int             `db:"current_stock" json:"current_stock"`
	Version      int64           `db:"version" json:"version"`
	SupplierID   *string         `db:"supplier_id" json:"supplier_id,omitempty"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

const itemColumns = `id, name, category, unit, unit_cost, min_stock, current_stock, version, supplier_id, is_active, created_at, updated_at`

// ItemRepository handles catalog item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create creates a new catalog item
func (r *ItemRepository) Create(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO items (
			id, name, category, unit, unit_cost, min_stock, current_stock, version, supplier_id, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.Unit, item.UnitCost,
		item.MinStock, item.CurrentStock, item.Version, item.SupplierID, item.IsActive,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	var item Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("item", id)
		}
		return nil, err
	}
	return &item, nil
}

// GetForUpdateTx gets an item by ID with a row lock, serializing
// concurrent ledger writers on the same item.
func (r *ItemRepository) GetForUpdateTx(tx *sqlx.Tx, id string) (*Item, error) {
	var item Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1 FOR UPDATE`
	if err := tx.Get(&item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("item", id)
		}
		return nil, err
	}
	return &item, nil
}

// UpdateBalanceTx writes the cached balance and bumps the version stamp.
// Must only be called from a ledger transaction that also inserts the
// corresponding movement.
func (r *ItemRepository) UpdateBalanceTx(tx *sqlx.Tx, id string, newBalance int) error {
	query := `UPDATE items SET current_stock = $2, version = version + 1, updated_at = NOW() WHERE id = $1`
	result, err := tx.Exec(query, id, newBalance)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFoundID("item", id)
	}

	return nil
}

// ListFilter narrows and orders an inventory listing
type ListFilter struct {
	Search   string
	Category string
	Sort     string
	Page     int
	PerPage  int
}

var listSortColumns = map[string]string{
	"":         "name",
	"name":     "name",
	"category": "category, name",
	"stock":    "current_stock, name",
	"updated":  "updated_at DESC, name",
}

// List lists active items with search, category filter and pagination
func (r *ItemRepository) List(ctx context.Context, filter ListFilter) ([]*Item, int64, error) {
	orderBy, ok := listSortColumns[filter.Sort]
	if !ok {
		return nil, 0, errors.BadRequest(fmt.Sprintf("unknown sort %q", filter.Sort))
	}

	where := `WHERE is_active = true`
	args := []interface{}{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += fmt.Sprintf(` AND category = $%d`, len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM items ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PerPage
	args = append(args, filter.PerPage, offset)
	query := fmt.Sprintf(
		`SELECT `+itemColumns+` FROM items %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		where, orderBy, len(args)-1, len(args),
	)

	var items []*Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// GetAllActive gets all active items
func (r *ItemRepository) GetAllActive(ctx context.Context) ([]*Item, error) {
	var items []*Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE is_active = true ORDER BY name`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}
