package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	store *inventorytest.Store
	seq   *inventorytest.Sequence

	mu         sync.Mutex
	customers  map[int64]Customer
	warehouses map[int64]Warehouse
	orders     map[int64]Order
	invoices   map[int64]Invoice
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		store:      inventorytest.NewStore(),
		seq:        inventorytest.NewSequence(),
		customers:  make(map[int64]Customer),
		warehouses: make(map[int64]Warehouse),
		orders:     make(map[int64]Order),
		invoices:   make(map[int64]Invoice),
	}
}

func cloneOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

func cloneInvoice(i Invoice) Invoice {
	i.Items = append([]InvoiceItem(nil), i.Items...)
	return i
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomically(func() error {
		r.mu.Lock()
		orders := make(map[int64]Order, len(r.orders))
		for k, v := range r.orders {
			orders[k] = cloneOrder(v)
		}
		invoices := make(map[int64]Invoice, len(r.invoices))
		for k, v := range r.invoices {
			invoices[k] = cloneInvoice(v)
		}
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.orders, r.invoices = orders, invoices
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetCustomer(_ context.Context, id int64) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
	}
	return c, nil
}

func (r *memoryRepo) CustomerExposure(_ context.Context, customerID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoiced := map[int64]bool{}
	exposure := decimal.Zero
	for _, inv := range r.invoices {
		invoiced[inv.OrderID] = true
		if inv.CustomerID == customerID && inv.Status != InvoicePaid {
			exposure = exposure.Add(inv.Outstanding())
		}
	}
	for _, o := range r.orders {
		if o.CustomerID != customerID || invoiced[o.ID] || o.Status == OrderDraft || o.Status == OrderCancelled {
			continue
		}
		exposure = exposure.Add(o.Total)
	}
	return exposure, nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (r *memoryRepo) ListOrders(_ context.Context, filter OrderFilter) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if filter.CustomerID != 0 && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		o.Items = nil
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return cloneInvoice(inv), nil
}

func (tx *memoryTx) Stock() inventory.StockTx { return tx.repo.store }

func (tx *memoryTx) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return tx.repo.seq.NextSequence(ctx, prefix, year)
}

func (tx *memoryTx) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return tx.repo.GetCustomer(ctx, id)
}

func (tx *memoryTx) GetWarehouse(_ context.Context, id int64) (Warehouse, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	w, ok := tx.repo.warehouses[id]
	if !ok {
		return Warehouse{}, fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, id)
	}
	return w, nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := tx.repo.GetOrder(ctx, id)
	o.Items = nil
	return o, err
}

func (tx *memoryTx) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	o, err := tx.repo.GetOrder(ctx, orderID)
	return o.Items, err
}

func (tx *memoryTx) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	o := tx.repo.orders[id]
	o.Status = status
	tx.repo.orders[id] = o
	return nil
}

func (tx *memoryTx) UpdateItemReserved(_ context.Context, itemID, reserved int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for id, o := range tx.repo.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].ReservedQuantity = reserved
				tx.repo.orders[id] = o
				return nil
			}
		}
	}
	return fmt.Errorf("%w: order item %d", shared.ErrNotFound, itemID)
}

func (tx *memoryTx) InsertOrder(_ context.Context, o *Order) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	o.ID = tx.repo.id()
	for i := range o.Items {
		o.Items[i].ID = tx.repo.id()
		o.Items[i].OrderID = o.ID
	}
	tx.repo.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (tx *memoryTx) SaveOrder(_ context.Context, o Order) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored := cloneOrder(o)
	stored.Status = tx.repo.orders[o.ID].Status
	tx.repo.orders[o.ID] = stored
	return nil
}

func (tx *memoryTx) InvoiceExists(_ context.Context, orderID int64) (bool, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, inv := range tx.repo.invoices {
		if inv.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertInvoice(_ context.Context, inv *Invoice) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	inv.ID = tx.repo.id()
	for i := range inv.Items {
		inv.Items[i].ID = tx.repo.id()
		inv.Items[i].InvoiceID = inv.ID
	}
	tx.repo.invoices[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (tx *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return tx.repo.GetInvoice(ctx, id)
}

func (tx *memoryTx) UpdateInvoicePayment(_ context.Context, inv Invoice) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored := tx.repo.invoices[inv.ID]
	stored.AmountPaid = inv.AmountPaid
	stored.Status = inv.Status
	tx.repo.invoices[inv.ID] = stored
	return nil
}

func (tx *memoryTx) UpdatePaymentStatus(_ context.Context, orderID int64, status PaymentStatus) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	o := tx.repo.orders[orderID]
	o.PaymentStatus = status
	tx.repo.orders[orderID] = o
	return nil
}
