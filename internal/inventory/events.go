package inventory

import "github.com/odyssey-erp/stockflow/internal/shared"

// LowStockWorkflow tags low-stock notifications.
const LowStockWorkflow = "inventory_low_stock"

// LowStockEvent builds the notification emitted when a record's free stock falls
// to its reorder point.
func LowStockEvent(rec Record, actor int64) shared.WorkflowEvent {
	return shared.WorkflowEvent{
		Workflow: LowStockWorkflow,
		Action:   "LOW_STOCK",
		EntityID: rec.ProductID,
		ActorID:  actor,
		Meta: map[string]any{
			"warehouse_id":  rec.WarehouseID,
			"product_id":    rec.ProductID,
			"free":          rec.Free(),
			"reorder_point": rec.ReorderPoint,
		},
	}
}
