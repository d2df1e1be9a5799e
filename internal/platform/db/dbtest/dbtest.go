//go:build integration

// Package dbtest starts a throwaway PostgreSQL container with the stockflow
// schema applied.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Database is a migrated container and a pool connected to it.
type Database struct {
	DSN  string
	Pool *pgxpool.Pool
}

// New starts postgres:16-alpine, applies every migration and registers cleanup.
func New(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockflow_test"),
		tcpostgres.WithUsername("stockflow"),
		tcpostgres.WithPassword("stockflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(dsn, nil))

	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &Database{DSN: dsn, Pool: pool}
}

// Warehouse inserts a warehouse and returns its id.
func (d *Database) Warehouse(t *testing.T, code string) int64 {
	t.Helper()
	var id int64
	err := d.Pool.QueryRow(context.Background(),
		`INSERT INTO warehouses (code, name, country) VALUES ($1, $1, 'US') RETURNING id`, code).Scan(&id)
	require.NoError(t, err)
	return id
}

// Product inserts a product with the given tax rate percentage.
func (d *Database) Product(t *testing.T, sku string, taxRate string) int64 {
	t.Helper()
	var id int64
	err := d.Pool.QueryRow(context.Background(),
		`INSERT INTO products (sku, name, tax_rate) VALUES ($1, $1, $2::NUMERIC) RETURNING id`, sku, taxRate).Scan(&id)
	require.NoError(t, err)
	return id
}

// Customer inserts a customer without a credit limit.
func (d *Database) Customer(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	err := d.Pool.QueryRow(context.Background(),
		`INSERT INTO customers (name, country) VALUES ($1, 'US') RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

// Stock sets the available quantity of a pair directly, bypassing the ledger
// except for one opening row so reconciliation still balances.
func (d *Database) Stock(t *testing.T, warehouseID, productID, available int64) {
	t.Helper()
	ctx := context.Background()
	_, err := d.Pool.Exec(ctx, `INSERT INTO inventory_records (warehouse_id, product_id, available)
VALUES ($1, $2, $3) ON CONFLICT (warehouse_id, product_id) DO UPDATE SET available = EXCLUDED.available`,
		warehouseID, productID, available)
	require.NoError(t, err)
	_, err = d.Pool.Exec(ctx, `INSERT INTO inventory_transactions
(warehouse_id, product_id, tx_type, quantity, quantity_before, quantity_after, reference_type, reference_id)
VALUES ($1, $2, 'ADJUSTMENT', $3, 0, $3, 'ADJUSTMENT', 0)`, warehouseID, productID, available)
	require.NoError(t, err, fmt.Sprintf("seed stock %d/%d", warehouseID, productID))
}
