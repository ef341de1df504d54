package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SupplierFixture represents test supplier data
type SupplierFixture struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	LeadTimeDays int
}

// ItemFixture represents test catalog item data
type ItemFixture struct {
	ID           string
	Name         string
	Category     string
	Unit         string
	UnitCost     string
	MinStock     int
	CurrentStock int
	SupplierID   *string
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID         string
	ItemID     string
	LotNumber  string
	ExpiryDate time.Time
	Quantity   int
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) next() int {
	f.sequence++
	return f.sequence
}

// Supplier creates a supplier fixture
func (f *FixtureFactory) Supplier() *SupplierFixture {
	n := f.next()
	return &SupplierFixture{
		ID:           uuid.New().String(),
		Name:         fmt.Sprintf("Supplier %d", n),
		Email:        fmt.Sprintf("supplier%d@example.com", n),
		Phone:        fmt.Sprintf("+1-555-%04d", n),
		LeadTimeDays: 7,
	}
}

// Item creates an item fixture
func (f *FixtureFactory) Item() *ItemFixture {
	n := f.next()
	return &ItemFixture{
		ID:           uuid.New().String(),
		Name:         fmt.Sprintf("Item %d", n),
		Category:     "analgesic",
		Unit:         "box",
		UnitCost:     "4.50",
		MinStock:     20,
		CurrentStock: 0,
	}
}

// Batch creates a batch fixture for the given item
func (f *FixtureFactory) Batch(itemID string, expiryInDays int) *BatchFixture {
	n := f.next()
	return &BatchFixture{
		ID:         uuid.New().String(),
		ItemID:     itemID,
		LotNumber:  fmt.Sprintf("LOT-%04d", n),
		ExpiryDate: time.Now().UTC().AddDate(0, 0, expiryInDays),
		Quantity:   0,
	}
}

// InsertSupplier persists a supplier fixture
func (f *FixtureFactory) InsertSupplier(ctx context.Context, db *sqlx.DB, s *SupplierFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, email, phone, lead_time_days)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.Name, s.Email, s.Phone, s.LeadTimeDays)
	return err
}

// InsertItem persists an item fixture
func (f *FixtureFactory) InsertItem(ctx context.Context, db *sqlx.DB, i *ItemFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, unit, unit_cost, min_stock, current_stock, supplier_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, i.ID, i.Name, i.Category, i.Unit, i.UnitCost, i.MinStock, i.CurrentStock, i.SupplierID)
	return err
}

// InsertBatch persists a batch fixture
func (f *FixtureFactory) InsertBatch(ctx context.Context, db *sqlx.DB, b *BatchFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO batches (id, item_id, lot_number, expiry_date, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.ItemID, b.LotNumber, b.ExpiryDate, b.Quantity)
	return err
}
