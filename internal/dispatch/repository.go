package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx     pgx.Tx
	orders sales.OrderTx
	stock  inventory.StockTx
}

// WithTx executes the callback inside a read-committed transaction shared with
// the sales order and stock tables.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, orders: sales.NewTxRepository(tx), stock: inventory.NewStockTx(tx)})
	})
}

const dispatchColumns = `id, number, sales_order_id, warehouse_id, status, carrier, tracking_number,
shipped_at, delivered_at, created_by, created_at, updated_at`

func scanDispatch(row pgx.Row) (Dispatch, error) {
	var (
		d      Dispatch
		status string
	)
	err := row.Scan(&d.ID, &d.Number, &d.SalesOrderID, &d.WarehouseID, &status, &d.Carrier, &d.TrackingNumber,
		&d.ShippedAt, &d.DeliveredAt, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	d.Status = Status(status)
	return d, err
}

func loadDispatch(ctx context.Context, q shared.DBTX, id int64, lock bool) (Dispatch, error) {
	sql := `SELECT ` + dispatchColumns + ` FROM dispatches WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	d, err := scanDispatch(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispatch{}, fmt.Errorf("%w: dispatch %d", shared.ErrNotFound, id)
		}
		return Dispatch{}, err
	}
	if d.Items, err = loadItems(ctx, q, id); err != nil {
		return Dispatch{}, err
	}
	if d.Tracking, err = loadTracking(ctx, q, id); err != nil {
		return Dispatch{}, err
	}
	return d, nil
}

func loadItems(ctx context.Context, q shared.DBTX, dispatchID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, dispatch_id, sales_order_item_id, product_id, quantity_ordered,
quantity_picked, quantity_packed, quantity_shipped
FROM dispatch_items WHERE dispatch_id = $1 ORDER BY id`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DispatchID, &item.SalesOrderItemID, &item.ProductID, &item.QuantityOrdered,
			&item.QuantityPicked, &item.QuantityPacked, &item.QuantityShipped); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func loadTracking(ctx context.Context, q shared.DBTX, dispatchID int64) ([]TrackingUpdate, error) {
	rows, err := q.Query(ctx, `SELECT id, dispatch_id, status, location, note, created_by, created_at
FROM tracking_updates WHERE dispatch_id = $1 ORDER BY created_at, id`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrackingUpdate
	for rows.Next() {
		var (
			u      TrackingUpdate
			status string
		)
		if err := rows.Scan(&u.ID, &u.DispatchID, &status, &u.Location, &u.Note, &u.CreatedBy, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Status = Status(status)
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetDispatch loads a dispatch with its lines and tracking history.
func (r *Repository) GetDispatch(ctx context.Context, id int64) (Dispatch, error) {
	return loadDispatch(ctx, r.pool, id, false)
}

// ListDispatches returns dispatch headers, newest first.
func (r *Repository) ListDispatches(ctx context.Context, filter Filter) ([]Dispatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+dispatchColumns+` FROM dispatches
WHERE ($1::BIGINT = 0 OR sales_order_id = $1) AND ($2::TEXT = '' OR status = $2)
ORDER BY id DESC LIMIT $3`, filter.SalesOrderID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *txRepo) Orders() sales.OrderTx { return t.orders }

func (t *txRepo) Stock() inventory.StockTx { return t.stock }

func (t *txRepo) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return shared.NextSequence(ctx, t.tx, prefix, year)
}

func (t *txRepo) OpenQuantities(ctx context.Context, salesOrderID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT di.sales_order_item_id, SUM(di.quantity_ordered)
FROM dispatch_items di JOIN dispatches d ON d.id = di.dispatch_id
WHERE d.sales_order_id = $1 AND d.status IN ('PENDING', 'PICKING', 'PACKED', 'READY_TO_SHIP')
GROUP BY di.sales_order_item_id`, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var itemID, qty int64
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		out[itemID] = qty
	}
	return out, rows.Err()
}

func (t *txRepo) UnsettledDispatches(ctx context.Context, salesOrderID, exceptID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM dispatches
WHERE sales_order_id = $1 AND id <> $2 AND status NOT IN ('DELIVERED', 'FAILED', 'CANCELLED')`,
		salesOrderID, exceptID).Scan(&n)
	return n, err
}

func (t *txRepo) InsertDispatch(ctx context.Context, d *Dispatch) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO dispatches
(number, sales_order_id, warehouse_id, status, carrier, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		d.Number, d.SalesOrderID, d.WarehouseID, string(d.Status), d.Carrier, d.CreatedBy, d.CreatedAt, d.UpdatedAt).Scan(&d.ID)
	if err != nil {
		return err
	}
	for i := range d.Items {
		item := &d.Items[i]
		item.DispatchID = d.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO dispatch_items (dispatch_id, sales_order_item_id, product_id, quantity_ordered)
VALUES ($1, $2, $3, $4) RETURNING id`, d.ID, item.SalesOrderItemID, item.ProductID, item.QuantityOrdered).Scan(&item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetDispatchForUpdate(ctx context.Context, id int64) (Dispatch, error) {
	return loadDispatch(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateDispatch(ctx context.Context, d Dispatch) error {
	_, err := t.tx.Exec(ctx, `UPDATE dispatches
SET status = $2, carrier = $3, tracking_number = $4, shipped_at = $5, delivered_at = $6, updated_at = $7
WHERE id = $1`, d.ID, string(d.Status), d.Carrier, d.TrackingNumber, d.ShippedAt, d.DeliveredAt, d.UpdatedAt)
	return err
}

func (t *txRepo) UpdateDispatchItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE dispatch_items
SET quantity_picked = $2, quantity_packed = $3, quantity_shipped = $4 WHERE id = $1`,
		item.ID, item.QuantityPicked, item.QuantityPacked, item.QuantityShipped)
	return err
}

func (t *txRepo) InsertTrackingUpdate(ctx context.Context, u *TrackingUpdate) error {
	return t.tx.QueryRow(ctx, `INSERT INTO tracking_updates (dispatch_id, status, location, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		u.DispatchID, string(u.Status), u.Location, u.Note, u.CreatedBy, u.CreatedAt).Scan(&u.ID)
}
