package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, approvals: shared.NewApprovalRecorder(pool)}
}

type txRepo struct {
	tx    pgx.Tx
	stock inventory.StockTx
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: inventory.NewStockTx(tx)})
	})
}

const poColumns = `id, number, supplier_id, warehouse_id, status, currency, expected_at, notes,
approved_by, approved_at, created_by, created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		status string
	)
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.WarehouseID, &status, &po.Currency, &po.ExpectedAt,
		&po.Notes, &po.ApprovedBy, &po.ApprovedAt, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.Status = POStatus(status)
	return po, err
}

func loadPO(ctx context.Context, q shared.DBTX, id int64, lock bool) (PurchaseOrder, error) {
	sql := `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	po, err := scanPO(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
		}
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, quantity_ordered, quantity_received, unit_cost
FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.QuantityOrdered,
			&item.QuantityReceived, &item.UnitCost); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

const grnColumns = `id, number, po_id, warehouse_id, status, has_discrepancy, notes, received_by,
verified_by, verified_at, created_at`

func scanGRN(row pgx.Row) (GoodsReceipt, error) {
	var (
		grn    GoodsReceipt
		status string
	)
	err := row.Scan(&grn.ID, &grn.Number, &grn.POID, &grn.WarehouseID, &status, &grn.HasDiscrepancy, &grn.Notes,
		&grn.ReceivedBy, &grn.VerifiedBy, &grn.VerifiedAt, &grn.CreatedAt)
	grn.Status = GRNStatus(status)
	return grn, err
}

func loadGRN(ctx context.Context, q shared.DBTX, id int64, lock bool) (GoodsReceipt, error) {
	sql := `SELECT ` + grnColumns + ` FROM grns WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	grn, err := scanGRN(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, fmt.Errorf("%w: goods receipt %d", shared.ErrNotFound, id)
		}
		return GoodsReceipt{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, grn_id, po_item_id, product_id, quantity_expected, quantity_received,
quantity_accepted, quantity_rejected, rejection_reason
FROM grn_items WHERE grn_id = $1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item GRNItem
		if err := rows.Scan(&item.ID, &item.GRNID, &item.POItemID, &item.ProductID, &item.QuantityExpected,
			&item.QuantityReceived, &item.QuantityAccepted, &item.QuantityRejected, &item.RejectionReason); err != nil {
			return GoodsReceipt{}, err
		}
		grn.Items = append(grn.Items, item)
	}
	return grn, rows.Err()
}

// GetPurchaseOrder loads an order with its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, r.pool, id, false)
}

// ListPurchaseOrders returns order headers, newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter POFilter) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE ($1::BIGINT = 0 OR supplier_id = $1) AND ($2::TEXT = '' OR status = $2)
ORDER BY id DESC LIMIT $3`, filter.SupplierID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

// GetGoodsReceipt loads a receipt with its lines.
func (r *Repository) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error) {
	return loadGRN(ctx, r.pool, id, false)
}

// ListGoodsReceipts returns the receipt headers of a purchase order.
func (r *Repository) ListGoodsReceipts(ctx context.Context, poID int64) ([]GoodsReceipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grnColumns+` FROM grns WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GoodsReceipt
	for rows.Next() {
		grn, err := scanGRN(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, grn)
	}
	return out, rows.Err()
}

// ListApprovals returns the approval trail of a purchase order.
func (r *Repository) ListApprovals(ctx context.Context, module string, poID int64) ([]shared.ApprovalLog, error) {
	return r.approvals.List(ctx, module, shared.ApprovalRef(module, poID))
}

func (tx *txRepo) Stock() inventory.StockTx { return tx.stock }

func (tx *txRepo) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return shared.NextSequence(ctx, tx.tx, prefix, year)
}

func (tx *txRepo) InsertPurchaseOrder(ctx context.Context, po *PurchaseOrder) error {
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, supplier_id, warehouse_id, status, currency, expected_at, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		po.Number, po.SupplierID, po.WarehouseID, string(po.Status), po.Currency, po.ExpectedAt, po.Notes,
		po.CreatedBy, po.CreatedAt, po.UpdatedAt).Scan(&po.ID)
	if err != nil {
		return err
	}
	for i := range po.Items {
		item := &po.Items[i]
		item.POID = po.ID
		if err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, product_id, quantity_ordered, unit_cost)
VALUES ($1, $2, $3, $4) RETURNING id`, po.ID, item.ProductID, item.QuantityOrdered, item.UnitCost).Scan(&item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txRepo) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, tx.tx, id, true)
}

func (tx *txRepo) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET status = $2, approved_by = $3, approved_at = $4, updated_at = $5 WHERE id = $1`,
		po.ID, string(po.Status), po.ApprovedBy, po.ApprovedAt, po.UpdatedAt)
	return err
}

func (tx *txRepo) UpdatePOItemReceived(ctx context.Context, itemID, received int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_order_items SET quantity_received = $2 WHERE id = $1`, itemID, received)
	return err
}

func (tx *txRepo) HasGoodsReceipts(ctx context.Context, poID int64) (bool, error) {
	var exists bool
	err := tx.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM grns WHERE po_id = $1)`, poID).Scan(&exists)
	return exists, err
}

func (tx *txRepo) InsertGoodsReceipt(ctx context.Context, grn *GoodsReceipt) error {
	err := tx.tx.QueryRow(ctx, `INSERT INTO grns
(number, po_id, warehouse_id, status, has_discrepancy, notes, received_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		grn.Number, grn.POID, grn.WarehouseID, string(grn.Status), grn.HasDiscrepancy, grn.Notes,
		grn.ReceivedBy, grn.CreatedAt).Scan(&grn.ID)
	if err != nil {
		return err
	}
	for i := range grn.Items {
		item := &grn.Items[i]
		item.GRNID = grn.ID
		if err := tx.tx.QueryRow(ctx, `INSERT INTO grn_items
(grn_id, po_item_id, product_id, quantity_expected, quantity_received, quantity_accepted, quantity_rejected, rejection_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			grn.ID, item.POItemID, item.ProductID, item.QuantityExpected, item.QuantityReceived,
			item.QuantityAccepted, item.QuantityRejected, item.RejectionReason).Scan(&item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txRepo) GetGoodsReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return loadGRN(ctx, tx.tx, id, true)
}

func (tx *txRepo) UpdateGoodsReceipt(ctx context.Context, grn GoodsReceipt) error {
	_, err := tx.tx.Exec(ctx, `UPDATE grns SET status = $2, verified_by = $3, verified_at = $4 WHERE id = $1`,
		grn.ID, string(grn.Status), grn.VerifiedBy, grn.VerifiedAt)
	return err
}

func (tx *txRepo) InsertApproval(ctx context.Context, log shared.ApprovalLog) error {
	return shared.InsertApproval(ctx, tx.tx, log)
}
