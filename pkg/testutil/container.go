// Package testutil provides testing utilities for PharmaFlow services.
// It includes testcontainers for PostgreSQL, sqlmock helpers, and common
// test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "pharmaflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "pharmaflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// InventorySchema is the DDL for the inventory service tables. The
// UNIQUE(item_id, seq) constraint backs the per-item ledger ordering.
const InventorySchema = `
	CREATE TABLE IF NOT EXISTS suppliers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		lead_time_days INT NOT NULL DEFAULT 7,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT 'unit',
		unit_cost NUMERIC(12,4) NOT NULL DEFAULT 0,
		min_stock INT NOT NULL DEFAULT 0,
		current_stock INT NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
		version BIGINT NOT NULL DEFAULT 0,
		supplier_id UUID REFERENCES suppliers(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS batches (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id),
		lot_number TEXT NOT NULL,
		expiry_date TIMESTAMPTZ NOT NULL,
		quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS purchase_orders (
		id UUID PRIMARY KEY,
		supplier_id UUID NOT NULL REFERENCES suppliers(id),
		status TEXT NOT NULL DEFAULT 'ordered',
		created_by TEXT NOT NULL DEFAULT 'system',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS purchase_order_lines (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES purchase_orders(id),
		item_id UUID NOT NULL REFERENCES items(id),
		ordered_qty INT NOT NULL CHECK (ordered_qty > 0),
		received_qty INT NOT NULL DEFAULT 0 CHECK (received_qty >= 0 AND received_qty <= ordered_qty),
		unit_price NUMERIC(12,4) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id),
		batch_id UUID REFERENCES batches(id),
		seq BIGINT NOT NULL,
		type TEXT NOT NULL,
		quantity_delta INT NOT NULL,
		unit_cost NUMERIC(12,4),
		actor TEXT NOT NULL DEFAULT 'system',
		reason_code TEXT,
		related_order_id UUID REFERENCES purchase_orders(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (item_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_movements_item_created
		ON stock_movements (item_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_batches_expiry
		ON batches (expiry_date) WHERE quantity > 0;
`

// CreateInventorySchema creates the inventory tables in the container
func (c *PostgresContainer) CreateInventorySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, InventorySchema); err != nil {
		return fmt.Errorf("failed to create inventory schema: %w", err)
	}
	return nil
}
