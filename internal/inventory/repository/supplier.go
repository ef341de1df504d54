package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// Supplier is read-only reference data; lead time feeds the forecast
// safety-stock buffer.
type Supplier struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        *string   `db:"email" json:"email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	LeadTimeDays int       `db:"lead_time_days" json:"lead_time_days"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SupplierRepository handles supplier persistence
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// Create creates a new supplier
func (r *SupplierRepository) Create(ctx context.Context, supplier *Supplier) error {
	if supplier.ID == "" {
		supplier.ID = uuid.New().String()
	}

	query := `
		INSERT INTO suppliers (id, name, email, phone, lead_time_days)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		supplier.ID, supplier.Name, supplier.Email, supplier.Phone, supplier.LeadTimeDays,
	).Scan(&supplier.CreatedAt)
}

// GetByID gets a supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*Supplier, error) {
	var supplier Supplier
	query := `SELECT * FROM suppliers WHERE id = $1`
	if err := r.db.GetContext(ctx, &supplier, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("supplier", id)
		}
		return nil, err
	}
	return &supplier, nil
}

// List lists all suppliers
func (r *SupplierRepository) List(ctx context.Context) ([]*Supplier, error) {
	var suppliers []*Supplier
	query := `SELECT * FROM suppliers ORDER BY name`
	if err := r.db.SelectContext(ctx, &suppliers, query); err != nil {
		return nil, err
	}
	return suppliers, nil
}
