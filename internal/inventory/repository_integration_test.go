//go:build integration

package inventory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db/dbtest"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	database := dbtest.New(t)
	wh := database.Warehouse(t, "WH1")
	p := database.Product(t, "SKU-1", "0")
	database.Stock(t, wh, p, 10)

	repo := inventory.NewRepository(database.Pool)
	reservations := inventory.NewReservations(inventory.NewLedger(nil))

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
				return reservations.Reserve(ctx, tx, wh, p, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, shared.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, short)

	rec, err := repo.GetRecord(context.Background(), wh, p)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Available)
	assert.Equal(t, int64(10), rec.Reserved)
}

func TestAdjustmentsKeepLedgerBalanced(t *testing.T) {
	database := dbtest.New(t)
	wh := database.Warehouse(t, "WH1")
	p := database.Product(t, "SKU-1", "0")

	repo := inventory.NewRepository(database.Pool)
	svc := inventory.NewService(repo, inventory.NewReservations(inventory.NewLedger(nil)), nil, shared.Hooks{}, nil)
	ctx := context.Background()

	first, err := svc.PostAdjustment(ctx, inventory.AdjustmentInput{WarehouseID: wh, ProductID: p, Qty: 12, Actor: 1})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Number, shared.PrefixAdjustment), first.Number)
	_, err = svc.PostAdjustment(ctx, inventory.AdjustmentInput{WarehouseID: wh, ProductID: p, Qty: -5, Actor: 1})
	require.NoError(t, err)

	_, err = svc.PostAdjustment(ctx, inventory.AdjustmentInput{WarehouseID: wh, ProductID: p, Qty: -50, Actor: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	res, err := svc.Reconcile(ctx, wh, p)
	require.NoError(t, err)
	assert.True(t, res.Balanced)
	assert.Equal(t, int64(7), res.Available)

	history, err := svc.History(ctx, inventory.TransactionFilter{WarehouseID: wh, ProductID: p})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLowStockQueries(t *testing.T) {
	database := dbtest.New(t)
	wh1 := database.Warehouse(t, "WH1")
	wh2 := database.Warehouse(t, "WH2")
	p := database.Product(t, "SKU-1", "0")
	database.Stock(t, wh1, p, 2)
	database.Stock(t, wh2, p, 20)

	repo := inventory.NewRepository(database.Pool)
	svc := inventory.NewService(repo, inventory.NewReservations(inventory.NewLedger(nil)), nil, shared.Hooks{}, nil)
	ctx := context.Background()
	require.NoError(t, svc.SetReorderPoint(ctx, wh1, p, 5))
	require.NoError(t, svc.SetReorderPoint(ctx, wh2, p, 5))

	ids, err := repo.ListWarehouseIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{wh1, wh2}, ids)

	low, err := repo.ListLowStock(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, wh1, low[0].WarehouseID)
}
