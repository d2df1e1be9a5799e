package returns

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

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, orders: sales.NewTxRepository(tx), stock: inventory.NewStockTx(tx)})
	})
}

const returnColumns = `id, number, sales_order_id, customer_id, warehouse_id, status, reason, deductions,
refund_amount, created_by, processed_at, created_at, updated_at`

func scanReturn(row pgx.Row) (Return, error) {
	var (
		rma    Return
		status string
	)
	err := row.Scan(&rma.ID, &rma.Number, &rma.SalesOrderID, &rma.CustomerID, &rma.WarehouseID, &status, &rma.Reason,
		&rma.Deductions, &rma.RefundAmount, &rma.CreatedBy, &rma.ProcessedAt, &rma.CreatedAt, &rma.UpdatedAt)
	rma.Status = Status(status)
	return rma, err
}

func loadReturn(ctx context.Context, q shared.DBTX, id int64, lock bool) (Return, error) {
	sql := `SELECT ` + returnColumns + ` FROM return_requests WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	rma, err := scanReturn(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, fmt.Errorf("%w: return %d", shared.ErrNotFound, id)
		}
		return Return{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, return_id, sales_order_item_id, product_id, quantity, quantity_received,
quantity_accepted, unit_price, condition, restockable
FROM return_items WHERE return_id = $1 ORDER BY id`, id)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item      Item
			condition string
		)
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.SalesOrderItemID, &item.ProductID, &item.Quantity,
			&item.QuantityReceived, &item.QuantityAccepted, &item.UnitPrice, &condition, &item.Restockable); err != nil {
			return Return{}, err
		}
		item.Condition = Condition(condition)
		rma.Items = append(rma.Items, item)
	}
	return rma, rows.Err()
}

// GetReturn loads a return with its items.
func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	return loadReturn(ctx, r.pool, id, false)
}

// ListReturns returns headers, newest first.
func (r *Repository) ListReturns(ctx context.Context, filter Filter) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM return_requests
WHERE ($1::BIGINT = 0 OR sales_order_id = $1) AND ($2::BIGINT = 0 OR customer_id = $2)
AND ($3::TEXT = '' OR status = $3)
ORDER BY id DESC LIMIT $4`, filter.SalesOrderID, filter.CustomerID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		rma, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rma)
	}
	return out, rows.Err()
}

func (t *txRepo) Orders() sales.OrderTx { return t.orders }

func (t *txRepo) Stock() inventory.StockTx { return t.stock }

func (t *txRepo) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return shared.NextSequence(ctx, t.tx, prefix, year)
}

func (t *txRepo) ReturnedQuantities(ctx context.Context, salesOrderID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT ri.sales_order_item_id, SUM(ri.quantity)
FROM return_items ri JOIN return_requests rr ON rr.id = ri.return_id
WHERE rr.sales_order_id = $1 AND rr.status <> 'REJECTED'
GROUP BY ri.sales_order_item_id`, salesOrderID)
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

func (t *txRepo) ShippedQuantities(ctx context.Context, salesOrderID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT di.sales_order_item_id, SUM(di.quantity_shipped)
FROM dispatch_items di JOIN dispatches d ON d.id = di.dispatch_id
WHERE d.sales_order_id = $1
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

func (t *txRepo) InsertReturn(ctx context.Context, rma *Return) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO return_requests
(number, sales_order_id, customer_id, warehouse_id, status, reason, deductions, refund_amount, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		rma.Number, rma.SalesOrderID, rma.CustomerID, rma.WarehouseID, string(rma.Status), rma.Reason, rma.Deductions,
		rma.RefundAmount, rma.CreatedBy, rma.CreatedAt, rma.UpdatedAt).Scan(&rma.ID)
	if err != nil {
		return err
	}
	for i := range rma.Items {
		item := &rma.Items[i]
		item.ReturnID = rma.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO return_items (return_id, sales_order_item_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			rma.ID, item.SalesOrderItemID, item.ProductID, item.Quantity, item.UnitPrice).Scan(&item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetReturnForUpdate(ctx context.Context, id int64) (Return, error) {
	return loadReturn(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateReturn(ctx context.Context, rma Return) error {
	_, err := t.tx.Exec(ctx, `UPDATE return_requests
SET status = $2, reason = $3, deductions = $4, refund_amount = $5, processed_at = $6, updated_at = $7
WHERE id = $1`, rma.ID, string(rma.Status), rma.Reason, rma.Deductions, rma.RefundAmount, rma.ProcessedAt, rma.UpdatedAt)
	return err
}

func (t *txRepo) UpdateReturnItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE return_items
SET quantity_received = $2, quantity_accepted = $3, condition = $4, restockable = $5 WHERE id = $1`,
		item.ID, item.QuantityReceived, item.QuantityAccepted, string(item.Condition), item.Restockable)
	return err
}
