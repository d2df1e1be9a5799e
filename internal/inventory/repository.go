package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*stockTx
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{stockTx: &stockTx{q: tx}, tx: tx}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type stockTx struct {
	q shared.DBTX
}

// NewStockTx exposes the stock rows of an open transaction to the ledger. Workflow
// repositories use it so their document writes and stock movements commit together.
func NewStockTx(tx pgx.Tx) StockTx {
	return &stockTx{q: tx}
}

const recordColumns = `warehouse_id, product_id, available, reserved, damaged, reorder_point, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.WarehouseID, &rec.ProductID, &rec.Available, &rec.Reserved, &rec.Damaged, &rec.ReorderPoint, &rec.UpdatedAt)
	return rec, err
}

func (s *stockTx) EnsureRecord(ctx context.Context, warehouseID, productID int64) error {
	_, err := s.q.Exec(ctx, `INSERT INTO inventory_records (warehouse_id, product_id)
VALUES ($1, $2) ON CONFLICT (warehouse_id, product_id) DO NOTHING`, warehouseID, productID)
	return err
}

func (s *stockTx) LockRecord(ctx context.Context, warehouseID, productID int64) (Record, error) {
	rec, err := scanRecord(s.q.QueryRow(ctx, `SELECT `+recordColumns+`
FROM inventory_records WHERE warehouse_id = $1 AND product_id = $2 FOR UPDATE`, warehouseID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (s *stockTx) SaveRecord(ctx context.Context, rec Record) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx, `UPDATE inventory_records
SET available = $3, reserved = $4, damaged = $5, updated_at = $6
WHERE warehouse_id = $1 AND product_id = $2`,
		rec.WarehouseID, rec.ProductID, rec.Available, rec.Reserved, rec.Damaged, updatedAt)
	return err
}

func (s *stockTx) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO inventory_transactions
(warehouse_id, product_id, tx_type, quantity, quantity_before, quantity_after, reference_type, reference_id, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		t.WarehouseID, t.ProductID, string(t.Type), t.Quantity, t.QuantityBefore, t.QuantityAfter,
		string(t.Reference.Kind()), t.Reference.ID(), t.CreatedBy, t.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return shared.NextSequence(ctx, r.tx, prefix, year)
}

func (r *txRepo) SetReorderPoint(ctx context.Context, warehouseID, productID, point int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_records SET reorder_point = $3, updated_at = NOW()
WHERE warehouse_id = $1 AND product_id = $2`, warehouseID, productID, point)
	return err
}

func (r *txRepo) InsertTransfer(ctx context.Context, t *Transfer) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_transfers
(number, from_warehouse_id, to_warehouse_id, status, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		t.Number, t.FromWarehouseID, t.ToWarehouseID, string(t.Status), t.Notes, t.CreatedBy, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return err
	}
	for i := range t.Items {
		item := &t.Items[i]
		item.TransferID = t.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_transfer_items (transfer_id, product_id, quantity_requested)
VALUES ($1, $2, $3) RETURNING id`, t.ID, item.ProductID, item.QuantityRequested).Scan(&item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	return loadTransfer(ctx, r.tx, id, true)
}

func (r *txRepo) UpdateTransfer(ctx context.Context, t Transfer) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouse_transfers SET status = $2, shipped_at = $3, received_at = $4 WHERE id = $1`,
		t.ID, string(t.Status), t.ShippedAt, t.ReceivedAt)
	return err
}

func (r *txRepo) UpdateTransferItem(ctx context.Context, item TransferItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouse_transfer_items SET quantity_shipped = $2, quantity_received = $3 WHERE id = $1`,
		item.ID, item.QuantityShipped, item.QuantityReceived)
	return err
}

// GetRecord reads a record without locking.
func (r *Repository) GetRecord(ctx context.Context, warehouseID, productID int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+`
FROM inventory_records WHERE warehouse_id = $1 AND product_id = $2`, warehouseID, productID))
	if err != nil {
		return Record{}, db.MapError(err)
	}
	return rec, nil
}

// ListTransactions returns ledger rows matching filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.WarehouseID != 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.ProductID != 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.Reference != nil {
		add("reference_type = $%d", string(filter.Reference.Kind()))
		add("reference_id = $%d", filter.Reference.ID())
	}
	sql := `SELECT id, warehouse_id, product_id, tx_type, quantity, quantity_before, quantity_after,
reference_type, reference_id, created_by, created_at FROM inventory_transactions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, shared.NormalizeLimit(filter.Limit))
	sql += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			t       Transaction
			txType  string
			refKind string
			refID   int64
		)
		if err := rows.Scan(&t.ID, &t.WarehouseID, &t.ProductID, &txType, &t.Quantity, &t.QuantityBefore,
			&t.QuantityAfter, &refKind, &refID, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = MovementType(txType)
		if t.Reference, err = ParseReference(refKind, refID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListLowStock returns records whose free stock is at or below a positive reorder point.
func (r *Repository) ListLowStock(ctx context.Context, warehouseID int64, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM inventory_records
WHERE reorder_point > 0 AND available - reserved <= reorder_point AND ($1::BIGINT = 0 OR warehouse_id = $1)
ORDER BY warehouse_id, product_id LIMIT $2`, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListWarehouseIDs returns warehouses that carry at least one reorder point.
func (r *Repository) ListWarehouseIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT warehouse_id FROM inventory_records
WHERE reorder_point > 0 ORDER BY warehouse_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SumLedger totals the signed quantities of a pair's ledger rows.
func (r *Repository) SumLedger(ctx context.Context, warehouseID, productID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::BIGINT FROM inventory_transactions
WHERE warehouse_id = $1 AND product_id = $2`, warehouseID, productID).Scan(&sum)
	return sum, err
}

// GetTransfer loads a transfer with its items.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, err := loadTransfer(ctx, r.pool, id, false)
	if err != nil {
		return Transfer{}, db.MapError(err)
	}
	return t, nil
}

// ListTransfers returns transfer headers, newest first.
func (r *Repository) ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM warehouse_transfers
WHERE ($1::TEXT = '' OR status = $1) AND ($2::BIGINT = 0 OR from_warehouse_id = $2 OR to_warehouse_id = $2)
ORDER BY id DESC LIMIT $3`, string(filter.Status), filter.WarehouseID, shared.NormalizeLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const transferColumns = `id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, shipped_at, received_at, created_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t      Transfer
		status string
	)
	err := row.Scan(&t.ID, &t.Number, &t.FromWarehouseID, &t.ToWarehouseID, &status, &t.Notes, &t.CreatedBy,
		&t.ShippedAt, &t.ReceivedAt, &t.CreatedAt)
	t.Status = TransferStatus(status)
	return t, err
}

func loadTransfer(ctx context.Context, q shared.DBTX, id int64, lock bool) (Transfer, error) {
	sql := `SELECT ` + transferColumns + ` FROM warehouse_transfers WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	t, err := scanTransfer(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
		}
		return Transfer{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, quantity_requested, quantity_shipped, quantity_received
FROM warehouse_transfer_items WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.QuantityRequested,
			&item.QuantityShipped, &item.QuantityReceived); err != nil {
			return Transfer{}, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}
