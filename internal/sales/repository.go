package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Repository persists sales data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx    pgx.Tx
	stock inventory.StockTx
}

// NewTxRepository wraps an open transaction. Dispatch and returns use it to
// cascade order changes in their own units of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx, stock: inventory.NewStockTx(tx)}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return err
}

func getCustomer(ctx context.Context, q shared.DBTX, id int64) (Customer, error) {
	var (
		c     Customer
		terms string
	)
	err := q.QueryRow(ctx, `SELECT id, name, email, country, state, credit_limit, payment_terms
FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Country, &c.State, &c.CreditLimit, &terms)
	if err != nil {
		return Customer{}, notFound(err, "customer", id)
	}
	c.PaymentTerms = PaymentTerms(terms)
	return c, nil
}

// GetCustomer reads a customer.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return getCustomer(ctx, r.pool, id)
}

// CustomerExposure sums open uninvoiced orders plus unpaid invoice balances.
func (r *Repository) CustomerExposure(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var exposure decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE((SELECT SUM(o.total) FROM sales_orders o
            WHERE o.customer_id = $1 AND o.status NOT IN ('DRAFT', 'CANCELLED')
              AND NOT EXISTS (SELECT 1 FROM invoices i WHERE i.order_id = o.id)), 0)
+ COALESCE((SELECT SUM(i.total - i.amount_paid) FROM invoices i
            WHERE i.customer_id = $1 AND i.status <> 'PAID'), 0)`, customerID).Scan(&exposure)
	return exposure, err
}

const orderColumns = `id, number, customer_id, warehouse_id, status, payment_status, payment_terms,
subtotal, tax_amount, total, tax_details, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                      Order
		status, payment, terms string
		details                []byte
	)
	if err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.WarehouseID, &status, &payment, &terms,
		&o.Subtotal, &o.TaxAmount, &o.Total, &details, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	o.PaymentStatus = PaymentStatus(payment)
	o.PaymentTerms = PaymentTerms(terms)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &o.TaxDetails); err != nil {
			return Order{}, fmt.Errorf("sales: decode tax details: %w", err)
		}
	}
	return o, nil
}

func listOrderItems(ctx context.Context, q shared.DBTX, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, reserved_quantity, unit_price,
discount_percent, subtotal, tax_rate, tax_amount, total FROM sales_order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.ReservedQuantity, &it.UnitPrice,
			&it.DiscountPercent, &it.Subtotal, &it.TaxRate, &it.TaxAmount, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOrder loads an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, notFound(err, "sales order", id)
	}
	if o.Items, err = listOrderItems(ctx, r.pool, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns order headers, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE ($1::BIGINT = 0 OR customer_id = $1) AND ($2::TEXT = '' OR status = $2)
ORDER BY id DESC LIMIT $3`, filter.CustomerID, string(filter.Status), shared.NormalizeLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const invoiceColumns = `id, number, order_id, customer_id, subtotal, tax_amount, total, amount_paid, status, issued_at, due_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		status string
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.Subtotal, &inv.TaxAmount,
		&inv.Total, &inv.AmountPaid, &status, &inv.IssuedAt, &inv.DueAt)
	inv.Status = InvoiceStatus(status)
	return inv, err
}

// GetInvoice loads an invoice with its items.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return Invoice{}, notFound(err, "invoice", id)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, order_item_id, product_id, quantity, unit_price, tax_amount, total
FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.OrderItemID, &it.ProductID, &it.Quantity, &it.UnitPrice,
			&it.TaxAmount, &it.Total); err != nil {
			return Invoice{}, err
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

func (t *txRepo) Stock() inventory.StockTx {
	return t.stock
}

func (t *txRepo) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return shared.NextSequence(ctx, t.tx, prefix, year)
}

func (t *txRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return getCustomer(ctx, t.tx, id)
}

func (t *txRepo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := t.tx.QueryRow(ctx, `SELECT id, country, state FROM warehouses WHERE id = $1`, id).Scan(&w.ID, &w.Country, &w.State)
	if err != nil {
		return Warehouse{}, notFound(err, "warehouse", id)
	}
	return w, nil
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, notFound(err, "sales order", id)
	}
	return o, nil
}

func (t *txRepo) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return listOrderItems(ctx, t.tx, orderID)
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (t *txRepo) UpdateItemReserved(ctx context.Context, itemID, reserved int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_order_items SET reserved_quantity = $2 WHERE id = $1`, itemID, reserved)
	return err
}

func (t *txRepo) InsertOrder(ctx context.Context, o *Order) error {
	details, err := json.Marshal(o.TaxDetails)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `INSERT INTO sales_orders
(number, customer_id, warehouse_id, status, payment_status, payment_terms, subtotal, tax_amount, total, tax_details, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		o.Number, o.CustomerID, o.WarehouseID, string(o.Status), string(o.PaymentStatus), string(o.PaymentTerms),
		o.Subtotal, o.TaxAmount, o.Total, details, o.Notes, o.CreatedBy, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return err
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO sales_order_items
(order_id, product_id, quantity, reserved_quantity, unit_price, discount_percent, subtotal, tax_rate, tax_amount, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
			o.ID, it.ProductID, it.Quantity, it.ReservedQuantity, it.UnitPrice, it.DiscountPercent,
			it.Subtotal, it.TaxRate, it.TaxAmount, it.Total).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) SaveOrder(ctx context.Context, o Order) error {
	details, err := json.Marshal(o.TaxDetails)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE sales_orders SET payment_terms = $2, subtotal = $3, tax_amount = $4, total = $5,
tax_details = $6, updated_at = NOW() WHERE id = $1`,
		o.ID, string(o.PaymentTerms), o.Subtotal, o.TaxAmount, o.Total, details); err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := t.tx.Exec(ctx, `UPDATE sales_order_items SET reserved_quantity = $2, subtotal = $3, tax_rate = $4,
tax_amount = $5, total = $6 WHERE id = $1`, it.ID, it.ReservedQuantity, it.Subtotal, it.TaxRate, it.TaxAmount, it.Total); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) InvoiceExists(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE order_id = $1)`, orderID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv *Invoice) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices
(number, order_id, customer_id, subtotal, tax_amount, total, amount_paid, status, issued_at, due_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		inv.Number, inv.OrderID, inv.CustomerID, inv.Subtotal, inv.TaxAmount, inv.Total, inv.AmountPaid,
		string(inv.Status), inv.IssuedAt, inv.DueAt).Scan(&inv.ID)
	if err != nil {
		return err
	}
	for i := range inv.Items {
		it := &inv.Items[i]
		it.InvoiceID = inv.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO invoice_items
(invoice_id, order_item_id, product_id, quantity, unit_price, tax_amount, total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			inv.ID, it.OrderItemID, it.ProductID, it.Quantity, it.UnitPrice, it.TaxAmount, it.Total).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, notFound(err, "invoice", id)
	}
	return inv, nil
}

func (t *txRepo) UpdateInvoicePayment(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET amount_paid = $2, status = $3 WHERE id = $1`,
		inv.ID, inv.AmountPaid, string(inv.Status))
	return err
}

func (t *txRepo) UpdatePaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, string(status))
	return err
}
