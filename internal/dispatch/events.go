package dispatch

import (
	"context"

	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Workflow is the dispatch name used in audit logs, metrics and notifications.
const Workflow = "dispatch"

func (s *Service) committed(ctx context.Context, d Dispatch, action string, actor int64) {
	var picked, packed, shipped int64
	for _, item := range d.Items {
		picked += item.QuantityPicked
		packed += item.QuantityPacked
		shipped += item.QuantityShipped
	}
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: Workflow,
		Action:   action,
		EntityID: d.ID,
		Number:   d.Number,
		Status:   string(d.Status),
		ActorID:  actor,
		Meta: map[string]any{
			"sales_order_id":  d.SalesOrderID,
			"warehouse_id":    d.WarehouseID,
			"tracking_number": d.TrackingNumber,
			"picked":          picked,
			"packed":          packed,
			"shipped":         shipped,
		},
	})
}

func (s *Service) orderCommitted(ctx context.Context, order sales.Order, action string, actor int64) {
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "sales_order",
		Action:   action,
		EntityID: order.ID,
		Number:   order.Number,
		Status:   string(order.Status),
		ActorID:  actor,
		Meta:     map[string]any{"customer_id": order.CustomerID},
	})
}
