package returns

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	store *inventorytest.Store
	seq   *inventorytest.Sequence

	mu      sync.Mutex
	orders  map[int64]sales.Order
	shipped map[int64]int64
	returns map[int64]Return
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		store:   inventorytest.NewStore(),
		seq:     inventorytest.NewSequence(),
		orders:  make(map[int64]sales.Order),
		shipped: make(map[int64]int64),
		returns: make(map[int64]Return),
		nextID:  500,
	}
}

func cloneReturn(rma Return) Return {
	rma.Items = append([]Item(nil), rma.Items...)
	return rma
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomically(func() error {
		r.mu.Lock()
		saved := make(map[int64]Return, len(r.returns))
		for k, v := range r.returns {
			saved[k] = cloneReturn(v)
		}
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.returns = saved
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetReturn(_ context.Context, id int64) (Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rma, ok := r.returns[id]
	if !ok {
		return Return{}, fmt.Errorf("%w: return %d", shared.ErrNotFound, id)
	}
	return cloneReturn(rma), nil
}

func (r *memoryRepo) ListReturns(_ context.Context, filter Filter) ([]Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Return
	for _, rma := range r.returns {
		if filter.SalesOrderID != 0 && rma.SalesOrderID != filter.SalesOrderID {
			continue
		}
		if filter.CustomerID != 0 && rma.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && rma.Status != filter.Status {
			continue
		}
		rma.Items = nil
		out = append(out, rma)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (tx *memoryTx) Orders() sales.OrderTx { return tx }

func (tx *memoryTx) Stock() inventory.StockTx { return tx.repo.store }

func (tx *memoryTx) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return tx.repo.seq.NextSequence(ctx, prefix, year)
}

func (tx *memoryTx) GetOrderForUpdate(_ context.Context, id int64) (sales.Order, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	o, ok := tx.repo.orders[id]
	if !ok {
		return sales.Order{}, fmt.Errorf("%w: sales order %d", shared.ErrNotFound, id)
	}
	o.Items = nil
	return o, nil
}

func (tx *memoryTx) ListOrderItems(_ context.Context, orderID int64) ([]sales.OrderItem, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	return append([]sales.OrderItem(nil), tx.repo.orders[orderID].Items...), nil
}

func (tx *memoryTx) UpdateOrderStatus(context.Context, int64, sales.OrderStatus) error {
	return fmt.Errorf("returns never change the order status")
}

func (tx *memoryTx) UpdateItemReserved(context.Context, int64, int64) error {
	return fmt.Errorf("returns never touch reservations")
}

func (tx *memoryTx) ReturnedQuantities(_ context.Context, salesOrderID int64) (map[int64]int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	out := make(map[int64]int64)
	for _, rma := range tx.repo.returns {
		if rma.SalesOrderID != salesOrderID || rma.Status == StatusRejected {
			continue
		}
		for _, item := range rma.Items {
			out[item.SalesOrderItemID] += item.Quantity
		}
	}
	return out, nil
}

func (tx *memoryTx) ShippedQuantities(_ context.Context, salesOrderID int64) (map[int64]int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	out := make(map[int64]int64)
	for _, item := range tx.repo.orders[salesOrderID].Items {
		if qty := tx.repo.shipped[item.ID]; qty > 0 {
			out[item.ID] = qty
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertReturn(_ context.Context, rma *Return) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	rma.ID = tx.repo.id()
	for i := range rma.Items {
		rma.Items[i].ID = tx.repo.id()
		rma.Items[i].ReturnID = rma.ID
	}
	tx.repo.returns[rma.ID] = cloneReturn(*rma)
	return nil
}

func (tx *memoryTx) GetReturnForUpdate(ctx context.Context, id int64) (Return, error) {
	return tx.repo.GetReturn(ctx, id)
}

func (tx *memoryTx) UpdateReturn(_ context.Context, rma Return) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored := tx.repo.returns[rma.ID]
	stored.Status = rma.Status
	stored.Reason = rma.Reason
	stored.Deductions = rma.Deductions
	stored.RefundAmount = rma.RefundAmount
	stored.ProcessedAt = rma.ProcessedAt
	stored.UpdatedAt = rma.UpdatedAt
	tx.repo.returns[rma.ID] = stored
	return nil
}

func (tx *memoryTx) UpdateReturnItem(_ context.Context, item Item) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	rma := tx.repo.returns[item.ReturnID]
	for i := range rma.Items {
		if rma.Items[i].ID == item.ID {
			rma.Items[i] = item
			return nil
		}
	}
	return fmt.Errorf("%w: return item %d", shared.ErrNotFound, item.ID)
}
