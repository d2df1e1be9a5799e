package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

const (
	warehouseID = int64(1)
	supplierID  = int64(5)
	productA    = int64(100)
	productB    = int64(200)
	buyer       = int64(7)
	approver    = int64(8)
)

var fixedNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	svc := NewService(repo, inventory.NewLedger(nil), shared.NewIdempotencyStore(client, time.Hour), shared.Hooks{})
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func poInput(items ...POItemInput) CreatePOInput {
	return CreatePOInput{SupplierID: supplierID, WarehouseID: warehouseID, Items: items, Actor: buyer}
}

func poItem(product, qty int64, cost string) POItemInput {
	return POItemInput{ProductID: product, Quantity: qty, UnitCost: decimal.RequireFromString(cost)}
}

// sentPO walks a new order through approval to SENT.
func sentPO(t *testing.T, svc *Service, items ...POItemInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreatePurchaseOrder(ctx, poInput(items...))
	require.NoError(t, err)
	_, err = svc.SubmitPurchaseOrder(ctx, po.ID, buyer)
	require.NoError(t, err)
	_, err = svc.ApprovePurchaseOrder(ctx, po.ID, approver)
	require.NoError(t, err)
	po, err = svc.SendPurchaseOrder(ctx, po.ID, buyer)
	require.NoError(t, err)
	return po
}

func TestPurchaseOrderApprovalFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	po, err := svc.CreatePurchaseOrder(ctx, poInput(poItem(productA, 10, "2.50"), poItem(productB, 4, "10")))
	require.NoError(t, err)
	assert.Equal(t, "PO2025000001", po.Number)
	assert.Equal(t, PODraft, po.Status)
	assert.Equal(t, "USD", po.Currency)
	assert.Equal(t, "65.00", po.Total().StringFixed(2))

	_, err = svc.ApprovePurchaseOrder(ctx, po.ID, approver)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = svc.SubmitPurchaseOrder(ctx, po.ID, buyer)
	require.NoError(t, err)
	approved, err := svc.ApprovePurchaseOrder(ctx, po.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, POApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, approver, *approved.ApprovedBy)

	_, err = svc.RejectPurchaseOrder(ctx, po.ID, approver, "late")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	history, err := svc.ApprovalHistory(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, shared.ApprovalSubmit, history[0].Action)
	assert.Equal(t, shared.ApprovalApprove, history[1].Action)
}

func TestRejectPurchaseOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	po, err := svc.CreatePurchaseOrder(ctx, poInput(poItem(productA, 1, "1")))
	require.NoError(t, err)
	_, err = svc.SubmitPurchaseOrder(ctx, po.ID, buyer)
	require.NoError(t, err)

	_, err = svc.RejectPurchaseOrder(ctx, po.ID, 0, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, POPending, repo.pos[po.ID].Status)

	rejected, err := svc.RejectPurchaseOrder(ctx, po.ID, approver, "price too high")
	require.NoError(t, err)
	assert.Equal(t, PORejected, rejected.Status)
	assert.True(t, rejected.Status.IsTerminal())
	assert.Contains(t, repo.approvals[len(repo.approvals)-1].Note, "price too high")
}

func TestGoodsReceiptPartialVerification(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	po := sentPO(t, svc, poItem(productA, 10, "3"))

	grn, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID:  po.ID,
		Items: []GRNItemInput{{POItemID: po.Items[0].ID, Accepted: 8, Rejected: 2, RejectionReason: "crushed"}},
		Actor: buyer,
	})
	require.NoError(t, err)
	assert.Equal(t, "GRN2025000001", grn.Number)
	assert.True(t, grn.HasDiscrepancy)
	assert.Equal(t, int64(10), grn.Items[0].QuantityExpected)
	assert.Equal(t, int64(10), grn.Items[0].QuantityReceived)
	_, exists := repo.store.Record(warehouseID, productA)
	assert.False(t, exists)

	_, err = svc.VerifyGoodsReceipt(ctx, grn.ID, approver, "")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = svc.SubmitGoodsReceipt(ctx, grn.ID, buyer)
	require.NoError(t, err)
	verified, err := svc.VerifyGoodsReceipt(ctx, grn.ID, approver, "verify-1")
	require.NoError(t, err)
	assert.Equal(t, GRNVerified, verified.Status)
	require.NotNil(t, verified.VerifiedAt)

	updated, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), updated.Items[0].QuantityReceived)
	assert.Equal(t, POPartiallyReceived, updated.Status)

	rec, ok := repo.store.Record(warehouseID, productA)
	require.True(t, ok)
	assert.Equal(t, int64(8), rec.Available)
	rows := repo.store.Transactions(inventory.GRNRef(grn.ID))
	require.Len(t, rows, 1)
	assert.Equal(t, inventory.MovementInward, rows[0].Type)
	assert.Equal(t, int64(8), rows[0].Quantity)

	_, err = svc.VerifyGoodsReceipt(ctx, grn.ID, approver, "verify-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	_, err = svc.VerifyGoodsReceipt(ctx, grn.ID, approver, "verify-2")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
	assert.Len(t, repo.store.Transactions(nil), 1)
}

func TestGoodsReceiptCompletesOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	po := sentPO(t, svc, poItem(productA, 5, "1"), poItem(productB, 2, "1"))

	receive := func(items ...GRNItemInput) {
		grn, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: po.ID, Items: items, Actor: buyer})
		require.NoError(t, err)
		_, err = svc.SubmitGoodsReceipt(ctx, grn.ID, buyer)
		require.NoError(t, err)
		_, err = svc.VerifyGoodsReceipt(ctx, grn.ID, approver, "")
		require.NoError(t, err)
	}
	receive(GRNItemInput{POItemID: po.Items[0].ID, Accepted: 5})
	assert.Equal(t, POPartiallyReceived, repo.pos[po.ID].Status)

	receive(GRNItemInput{POItemID: po.Items[1].ID, Accepted: 2})
	assert.Equal(t, POReceived, repo.pos[po.ID].Status)

	_, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID: po.ID, Items: []GRNItemInput{{POItemID: po.Items[0].ID, Accepted: 1}}, Actor: buyer,
	})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestGoodsReceiptRejectsExcess(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	po := sentPO(t, svc, poItem(productA, 10, "1"))
	itemID := po.Items[0].ID

	_, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID: po.ID, Items: []GRNItemInput{{POItemID: itemID, Accepted: 9, Rejected: 2}}, Actor: buyer,
	})
	require.ErrorIs(t, err, shared.ErrExcessQuantity)

	// Two drafts may each fit on their own; the second verification re-checks under lock.
	first, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: po.ID, Items: []GRNItemInput{{POItemID: itemID, Accepted: 7}}, Actor: buyer})
	require.NoError(t, err)
	second, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: po.ID, Items: []GRNItemInput{{POItemID: itemID, Accepted: 6}}, Actor: buyer})
	require.NoError(t, err)
	for _, id := range []int64{first.ID, second.ID} {
		_, err = svc.SubmitGoodsReceipt(ctx, id, buyer)
		require.NoError(t, err)
	}
	_, err = svc.VerifyGoodsReceipt(ctx, first.ID, approver, "")
	require.NoError(t, err)
	_, err = svc.VerifyGoodsReceipt(ctx, second.ID, approver, "")
	require.ErrorIs(t, err, shared.ErrExcessQuantity)

	rec, _ := repo.store.Record(warehouseID, productA)
	assert.Equal(t, int64(7), rec.Available)
	assert.Equal(t, GRNPendingVerification, repo.grns[second.ID].Status)
	assert.Equal(t, int64(7), repo.pos[po.ID].Items[0].QuantityReceived)
}

func TestGoodsReceiptValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	po, err := svc.CreatePurchaseOrder(ctx, poInput(poItem(productA, 3, "1")))
	require.NoError(t, err)

	_, err = svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: po.ID, Items: []GRNItemInput{{POItemID: po.Items[0].ID, Accepted: 1}}})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	po = sentPO(t, svc, poItem(productA, 3, "1"))
	cases := map[string][]GRNItemInput{
		"unknown line": {{POItemID: 999, Accepted: 1}},
		"empty line":   {{POItemID: po.Items[0].ID}},
		"duplicate":    {{POItemID: po.Items[0].ID, Accepted: 1}, {POItemID: po.Items[0].ID, Accepted: 1}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: po.ID, Items: items})
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCancelPurchaseOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	draft, err := svc.CreatePurchaseOrder(ctx, poInput(poItem(productA, 1, "1")))
	require.NoError(t, err)
	cancelled, err := svc.CancelPurchaseOrder(ctx, draft.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, POCancelled, cancelled.Status)
	_, err = svc.CancelPurchaseOrder(ctx, draft.ID, buyer)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	po := sentPO(t, svc, poItem(productA, 4, "1"))
	grn, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: po.ID, Items: []GRNItemInput{{POItemID: po.Items[0].ID, Accepted: 1}}})
	require.NoError(t, err)
	_, err = svc.RejectGoodsReceipt(ctx, grn.ID, buyer)
	require.NoError(t, err)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID, buyer)
	require.ErrorIs(t, err, shared.ErrHasGRN)
}

func TestReceivedStatus(t *testing.T) {
	status, ok := receivedStatus([]POItem{{QuantityOrdered: 2}, {QuantityOrdered: 3}})
	assert.False(t, ok)
	assert.Empty(t, status)

	status, ok = receivedStatus([]POItem{{QuantityOrdered: 2, QuantityReceived: 2}, {QuantityOrdered: 3, QuantityReceived: 1}})
	assert.True(t, ok)
	assert.Equal(t, POPartiallyReceived, status)

	status, _ = receivedStatus([]POItem{{QuantityOrdered: 2, QuantityReceived: 2}, {QuantityOrdered: 3, QuantityReceived: 3}})
	assert.Equal(t, POReceived, status)
}
