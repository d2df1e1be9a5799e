package dispatch

// CreateInput opens a dispatch for a sales order.
type CreateInput struct {
	SalesOrderID int64       `json:"sales_order_id" validate:"required"`
	Carrier      string      `json:"carrier" validate:"max=100"`
	Items        []LineInput `json:"items" validate:"dive"`
	Actor        int64       `json:"-"`
}

// LineInput selects a sales order line. A zero Quantity takes everything left.
type LineInput struct {
	SalesOrderItemID int64 `json:"sales_order_item_id" validate:"required"`
	Quantity         int64 `json:"quantity" validate:"gte=0"`
}

// QuantityInput adds picked or packed units to a dispatch item.
type QuantityInput struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

// ReadyInput assigns the carrier before shipping.
type ReadyInput struct {
	Carrier        string `json:"carrier" validate:"max=100"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
}

// TrackingInput describes one carrier event.
type TrackingInput struct {
	Location string `json:"location" validate:"max=200"`
	Note     string `json:"note" validate:"max=1000"`
}

// Filter narrows dispatch listings.
type Filter struct {
	SalesOrderID int64
	Status       Status
	Limit        int
}

type quantitiesRequest struct {
	Lines []QuantityInput `json:"lines"`
}
