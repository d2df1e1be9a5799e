package procurement

import (
	"context"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Workflow names used in audit logs, metrics and notifications.
const (
	POWorkflow  = "purchase_order"
	GRNWorkflow = "goods_receipt"
)

func (s *Service) poCommitted(ctx context.Context, po PurchaseOrder, action string, actor int64) {
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: POWorkflow,
		Action:   action,
		EntityID: po.ID,
		Number:   po.Number,
		Status:   string(po.Status),
		ActorID:  actor,
		Meta:     map[string]any{"supplier_id": po.SupplierID, "total": po.Total().StringFixed(2)},
	})
}

func (s *Service) grnCommitted(ctx context.Context, grn GoodsReceipt, action string, actor int64) {
	var accepted, rejected int64
	for _, item := range grn.Items {
		accepted += item.QuantityAccepted
		rejected += item.QuantityRejected
	}
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: GRNWorkflow,
		Action:   action,
		EntityID: grn.ID,
		Number:   grn.Number,
		Status:   string(grn.Status),
		ActorID:  actor,
		Meta: map[string]any{
			"po_id":           grn.POID,
			"warehouse_id":    grn.WarehouseID,
			"accepted":        accepted,
			"rejected":        rejected,
			"has_discrepancy": grn.HasDiscrepancy,
		},
	})
}
