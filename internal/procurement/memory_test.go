package procurement

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
	pos       map[int64]PurchaseOrder
	grns      map[int64]GoodsReceipt
	approvals []shared.ApprovalLog
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		store: inventorytest.NewStore(),
		seq:   inventorytest.NewSequence(),
		pos:   make(map[int64]PurchaseOrder),
		grns:  make(map[int64]GoodsReceipt),
	}
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.Items = append([]POItem(nil), po.Items...)
	return po
}

func cloneGRN(grn GoodsReceipt) GoodsReceipt {
	grn.Items = append([]GRNItem(nil), grn.Items...)
	return grn
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomically(func() error {
		r.mu.Lock()
		pos := make(map[int64]PurchaseOrder, len(r.pos))
		for k, v := range r.pos {
			pos[k] = clonePO(v)
		}
		grns := make(map[int64]GoodsReceipt, len(r.grns))
		for k, v := range r.grns {
			grns[k] = cloneGRN(v)
		}
		approvals := append([]shared.ApprovalLog(nil), r.approvals...)
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.pos, r.grns, r.approvals = pos, grns, approvals
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	return clonePO(po), nil
}

func (r *memoryRepo) ListPurchaseOrders(_ context.Context, filter POFilter) ([]PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range r.pos {
		if filter.SupplierID != 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		out = append(out, clonePO(po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetGoodsReceipt(_ context.Context, id int64) (GoodsReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grn, ok := r.grns[id]
	if !ok {
		return GoodsReceipt{}, fmt.Errorf("%w: goods receipt %d", shared.ErrNotFound, id)
	}
	return cloneGRN(grn), nil
}

func (r *memoryRepo) ListGoodsReceipts(_ context.Context, poID int64) ([]GoodsReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GoodsReceipt
	for _, grn := range r.grns {
		if grn.POID == poID {
			out = append(out, cloneGRN(grn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListApprovals(_ context.Context, module string, poID int64) ([]shared.ApprovalLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := shared.ApprovalRef(module, poID)
	var out []shared.ApprovalLog
	for _, l := range r.approvals {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func (tx *memoryTx) Stock() inventory.StockTx { return tx.repo.store }

func (tx *memoryTx) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	return tx.repo.seq.NextSequence(ctx, prefix, year)
}

func (tx *memoryTx) InsertPurchaseOrder(_ context.Context, po *PurchaseOrder) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	for i := range po.Items {
		tx.repo.nextID++
		po.Items[i].ID = tx.repo.nextID
		po.Items[i].POID = po.ID
	}
	tx.repo.pos[po.ID] = clonePO(*po)
	return nil
}

func (tx *memoryTx) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return tx.repo.GetPurchaseOrder(ctx, id)
}

func (tx *memoryTx) UpdatePurchaseOrder(_ context.Context, po PurchaseOrder) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored := tx.repo.pos[po.ID]
	stored.Status, stored.ApprovedBy, stored.ApprovedAt, stored.UpdatedAt = po.Status, po.ApprovedBy, po.ApprovedAt, po.UpdatedAt
	tx.repo.pos[po.ID] = stored
	return nil
}

func (tx *memoryTx) UpdatePOItemReceived(_ context.Context, itemID, received int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for id, po := range tx.repo.pos {
		for i := range po.Items {
			if po.Items[i].ID == itemID {
				po.Items[i].QuantityReceived = received
				tx.repo.pos[id] = po
				return nil
			}
		}
	}
	return fmt.Errorf("%w: purchase order item %d", shared.ErrNotFound, itemID)
}

func (tx *memoryTx) HasGoodsReceipts(_ context.Context, poID int64) (bool, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, grn := range tx.repo.grns {
		if grn.POID == poID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertGoodsReceipt(_ context.Context, grn *GoodsReceipt) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.nextID++
	grn.ID = tx.repo.nextID
	for i := range grn.Items {
		tx.repo.nextID++
		grn.Items[i].ID = tx.repo.nextID
		grn.Items[i].GRNID = grn.ID
	}
	tx.repo.grns[grn.ID] = cloneGRN(*grn)
	return nil
}

func (tx *memoryTx) GetGoodsReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return tx.repo.GetGoodsReceipt(ctx, id)
}

func (tx *memoryTx) UpdateGoodsReceipt(_ context.Context, grn GoodsReceipt) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored := tx.repo.grns[grn.ID]
	stored.Status, stored.VerifiedBy, stored.VerifiedAt = grn.Status, grn.VerifiedBy, grn.VerifiedAt
	tx.repo.grns[grn.ID] = stored
	return nil
}

func (tx *memoryTx) InsertApproval(_ context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.approvals = append(tx.repo.approvals, log)
	return nil
}
