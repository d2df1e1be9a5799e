package returns

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Status tracks a return merchandise authorization.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusReceived  Status = "RECEIVED"
	StatusInspected Status = "INSPECTED"
	StatusProcessed Status = "PROCESSED"
	StatusRefunded  Status = "REFUNDED"
	StatusReplaced  Status = "REPLACED"
)

// Transitions maps each target status to its single predecessor.
var Transitions = shared.Transitions[Status]{
	StatusApproved:  {StatusRequested},
	StatusRejected:  {StatusRequested},
	StatusReceived:  {StatusApproved},
	StatusInspected: {StatusReceived},
	StatusProcessed: {StatusInspected},
	StatusRefunded:  {StatusProcessed},
	StatusReplaced:  {StatusProcessed},
}

// IsValid reports whether s is a known return status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusApproved, StatusRejected, StatusReceived, StatusInspected,
		StatusProcessed, StatusRefunded, StatusReplaced:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusRefunded || s == StatusReplaced
}

// Condition grades a returned unit at inspection.
type Condition string

const (
	ConditionNew       Condition = "NEW"
	ConditionOpened    Condition = "OPENED"
	ConditionDamaged   Condition = "DAMAGED"
	ConditionDefective Condition = "DEFECTIVE"
)

// Return is a customer's request to send goods of a shipped order back.
type Return struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SalesOrderID int64           `json:"sales_order_id"`
	CustomerID   int64           `json:"customer_id"`
	WarehouseID  int64           `json:"warehouse_id"`
	Status       Status          `json:"status"`
	Reason       string          `json:"reason"`
	Deductions   decimal.Decimal `json:"deductions"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	CreatedBy    int64           `json:"created_by"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []Item          `json:"items"`
}

// Item is one returned order line. Accepted never exceeds received, which never
// exceeds the requested Quantity.
type Item struct {
	ID               int64           `json:"id"`
	ReturnID         int64           `json:"return_id"`
	SalesOrderItemID int64           `json:"sales_order_item_id"`
	ProductID        int64           `json:"product_id"`
	Quantity         int64           `json:"quantity"`
	QuantityReceived int64           `json:"quantity_received"`
	QuantityAccepted int64           `json:"quantity_accepted"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Condition        Condition       `json:"condition,omitempty"`
	Restockable      bool            `json:"restockable"`
}

// RefundAmount is the accepted value less deductions, never negative.
func RefundAmount(items []Item, deductions decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.QuantityAccepted)))
	}
	total = total.Sub(deductions)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

// Filter narrows return listings.
type Filter struct {
	SalesOrderID int64
	CustomerID   int64
	Status       Status
	Limit        int
}
