package returns

import (
	"context"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Workflow is the returns name used in audit logs, metrics and notifications.
const Workflow = "return"

func (s *Service) committed(ctx context.Context, rma Return, action string, actor int64) {
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: Workflow,
		Action:   action,
		EntityID: rma.ID,
		Number:   rma.Number,
		Status:   string(rma.Status),
		ActorID:  actor,
		Meta: map[string]any{
			"sales_order_id": rma.SalesOrderID,
			"customer_id":    rma.CustomerID,
			"refund_amount":  rma.RefundAmount.StringFixed(2),
		},
	})
}
