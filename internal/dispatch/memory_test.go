package dispatch

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

	mu         sync.Mutex
	orders     map[int64]sales.Order
	dispatches map[int64]Dispatch
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		store:      inventorytest.NewStore(),
		seq:        inventorytest.NewSequence(),
		orders:     make(map[int64]sales.Order),
		dispatches: make(map[int64]Dispatch),
		nextID:     1000,
	}
}

func cloneOrder(o sales.Order) sales.Order {
	o.Items = append([]sales.OrderItem(nil), o.Items...)
	return o
}

func cloneDispatch(d Dispatch) Dispatch {
	d.Items = append([]Item(nil), d.Items...)
	d.Tracking = append([]TrackingUpdate(nil), d.Tracking...)
	return d
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) order(id int64) sales.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneOrder(r.orders[id])
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomically(func() error {
		r.mu.Lock()
		orders := make(map[int64]sales.Order, len(r.orders))
		for k, v := range r.orders {
			orders[k] = cloneOrder(v)
		}
		dispatches := make(map[int64]Dispatch, len(r.dispatches))
		for k, v := range r.dispatches {
			dispatches[k] = cloneDispatch(v)
		}
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.orders, r.dispatches = orders, dispatches
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetDispatch(_ context.Context, id int64) (Dispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dispatches[id]
	if !ok {
		return Dispatch{}, fmt.Errorf("%w: dispatch %d", shared.ErrNotFound, id)
	}
	return cloneDispatch(d), nil
}

func (r *memoryRepo) ListDispatches(_ context.Context, filter Filter) ([]Dispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Dispatch
	for _, d := range r.dispatches {
		if filter.SalesOrderID != 0 && d.SalesOrderID != filter.SalesOrderID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		d.Items, d.Tracking = nil, nil
		out = append(out, d)
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

func (tx *memoryTx) UpdateOrderStatus(_ context.Context, id int64, status sales.OrderStatus) error {
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

func (tx *memoryTx) OpenQuantities(_ context.Context, salesOrderID int64) (map[int64]int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	out := make(map[int64]int64)
	for _, d := range tx.repo.dispatches {
		if d.SalesOrderID != salesOrderID {
			continue
		}
		switch d.Status {
		case StatusPending, StatusPicking, StatusPacked, StatusReadyToShip:
			for _, item := range d.Items {
				out[item.SalesOrderItemID] += item.QuantityOrdered
			}
		}
	}
	return out, nil
}

func (tx *memoryTx) UnsettledDispatches(_ context.Context, salesOrderID, exceptID int64) (int, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	var n int
	for _, d := range tx.repo.dispatches {
		if d.SalesOrderID == salesOrderID && d.ID != exceptID && !d.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) InsertDispatch(_ context.Context, d *Dispatch) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	d.ID = tx.repo.id()
	for i := range d.Items {
		d.Items[i].ID = tx.repo.id()
		d.Items[i].DispatchID = d.ID
	}
	tx.repo.dispatches[d.ID] = cloneDispatch(*d)
	return nil
}

func (tx *memoryTx) GetDispatchForUpdate(ctx context.Context, id int64) (Dispatch, error) {
	return tx.repo.GetDispatch(ctx, id)
}

func (tx *memoryTx) UpdateDispatch(_ context.Context, d Dispatch) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored := tx.repo.dispatches[d.ID]
	stored.Status = d.Status
	stored.Carrier = d.Carrier
	stored.TrackingNumber = d.TrackingNumber
	stored.ShippedAt = d.ShippedAt
	stored.DeliveredAt = d.DeliveredAt
	stored.UpdatedAt = d.UpdatedAt
	tx.repo.dispatches[d.ID] = stored
	return nil
}

func (tx *memoryTx) UpdateDispatchItem(_ context.Context, item Item) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	d := tx.repo.dispatches[item.DispatchID]
	for i := range d.Items {
		if d.Items[i].ID == item.ID {
			d.Items[i] = item
			tx.repo.dispatches[d.ID] = d
			return nil
		}
	}
	return fmt.Errorf("%w: dispatch item %d", shared.ErrNotFound, item.ID)
}

func (tx *memoryTx) InsertTrackingUpdate(_ context.Context, u *TrackingUpdate) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	u.ID = tx.repo.id()
	d := tx.repo.dispatches[u.DispatchID]
	d.Tracking = append(d.Tracking, *u)
	tx.repo.dispatches[d.ID] = d
	return nil
}
