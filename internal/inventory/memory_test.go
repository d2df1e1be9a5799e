package inventory_test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	store *inventorytest.Store
	seq   *inventorytest.Sequence

	mu        sync.Mutex
	transfers map[int64]inventory.Transfer
	nextID    int64
}

type memoryTx struct {
	*inventorytest.Store
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		store:     inventorytest.NewStore(),
		seq:       inventorytest.NewSequence(),
		transfers: make(map[int64]inventory.Transfer),
	}
}

func cloneTransfer(t inventory.Transfer) inventory.Transfer {
	t.Items = append([]inventory.TransferItem(nil), t.Items...)
	return t
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.store.Atomically(func() error {
		r.mu.Lock()
		saved := make(map[int64]inventory.Transfer, len(r.transfers))
		for k, v := range r.transfers {
			saved[k] = cloneTransfer(v)
		}
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{Store: r.store, repo: r}); err != nil {
			r.mu.Lock()
			r.transfers = saved
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetRecord(_ context.Context, warehouseID, productID int64) (inventory.Record, error) {
	rec, ok := r.store.Record(warehouseID, productID)
	if !ok {
		return inventory.Record{}, fmt.Errorf("%w: record", shared.ErrNotFound)
	}
	return rec, nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, filter inventory.TransactionFilter) ([]inventory.Transaction, error) {
	var out []inventory.Transaction
	all := r.store.Transactions(filter.Reference)
	for i := len(all) - 1; i >= 0; i-- {
		t := all[i]
		if filter.WarehouseID != 0 && t.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ProductID != 0 && t.ProductID != filter.ProductID {
			continue
		}
		out = append(out, t)
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) ListLowStock(_ context.Context, warehouseID int64, limit int) ([]inventory.Record, error) {
	var out []inventory.Record
	for _, rec := range r.store.Records() {
		if warehouseID != 0 && rec.WarehouseID != warehouseID {
			continue
		}
		if rec.BelowReorderPoint() && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) SumLedger(_ context.Context, warehouseID, productID int64) (int64, error) {
	return r.store.LedgerSum(warehouseID, productID), nil
}

func (r *memoryRepo) GetTransfer(_ context.Context, id int64) (inventory.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return inventory.Transfer{}, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
	}
	return cloneTransfer(t), nil
}

func (r *memoryRepo) ListTransfers(_ context.Context, filter inventory.TransferFilter) ([]inventory.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []inventory.Transfer
	for _, t := range r.transfers {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, cloneTransfer(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return tx.repo.seq.NextSequence(ctx, prefix, year)
}

func (tx *memoryTx) SetReorderPoint(_ context.Context, warehouseID, productID, point int64) error {
	tx.Store.SetReorderPoint(warehouseID, productID, point)
	return nil
}

func (tx *memoryTx) InsertTransfer(_ context.Context, t *inventory.Transfer) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.nextID++
	t.ID = tx.repo.nextID
	for i := range t.Items {
		t.Items[i].ID = t.ID*100 + int64(i) + 1
		t.Items[i].TransferID = t.ID
	}
	tx.repo.transfers[t.ID] = cloneTransfer(*t)
	return nil
}

func (tx *memoryTx) GetTransferForUpdate(ctx context.Context, id int64) (inventory.Transfer, error) {
	return tx.repo.GetTransfer(ctx, id)
}

func (tx *memoryTx) UpdateTransfer(_ context.Context, t inventory.Transfer) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (tx *memoryTx) UpdateTransferItem(_ context.Context, item inventory.TransferItem) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	t := tx.repo.transfers[item.TransferID]
	for i := range t.Items {
		if t.Items[i].ID == item.ID {
			t.Items[i] = item
		}
	}
	tx.repo.transfers[item.TransferID] = t
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []shared.WorkflowEvent
}

func (n *recordingNotifier) Notify(_ context.Context, evt shared.WorkflowEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Action)
	}
	return out
}
