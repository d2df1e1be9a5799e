package returns

import "github.com/shopspring/decimal"

// CreateInput requests a return against a shipped or delivered sales order.
type CreateInput struct {
	SalesOrderID int64       `json:"sales_order_id" validate:"required"`
	Reason       string      `json:"reason" validate:"required,max=1000"`
	Items        []LineInput `json:"items" validate:"required,min=1,dive"`
	Actor        int64       `json:"-"`
}

// LineInput names an order line and the quantity going back.
type LineInput struct {
	SalesOrderItemID int64 `json:"sales_order_item_id" validate:"required"`
	Quantity         int64 `json:"quantity" validate:"gt=0"`
}

// ReceiveLine records units that arrived at the warehouse.
type ReceiveLine struct {
	ItemID   int64 `json:"item_id" validate:"required"`
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

// InspectInput grades the received units. Deductions lower the refund, e.g. restocking fees.
type InspectInput struct {
	Items      []InspectLine   `json:"items" validate:"required,min=1,dive"`
	Deductions decimal.Decimal `json:"deductions"`
}

// InspectLine is the verdict on one return item.
type InspectLine struct {
	ItemID      int64     `json:"item_id" validate:"required"`
	Accepted    int64     `json:"accepted" validate:"gte=0"`
	Condition   Condition `json:"condition" validate:"required,oneof=NEW OPENED DAMAGED DEFECTIVE"`
	Restockable bool      `json:"restockable"`
}

type receiveRequest struct {
	Items []ReceiveLine `json:"items" validate:"dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}
