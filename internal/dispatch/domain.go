package dispatch

import (
	"time"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Status tracks a dispatch from picking to delivery.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPicking        Status = "PICKING"
	StatusPacked         Status = "PACKED"
	StatusReadyToShip    Status = "READY_TO_SHIP"
	StatusShipped        Status = "SHIPPED"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusFailed         Status = "FAILED"
	StatusCancelled      Status = "CANCELLED"
)

// Transitions maps each target status to the statuses it may be entered from.
var Transitions = shared.Transitions[Status]{
	StatusPicking:        {StatusPending},
	StatusPacked:         {StatusPicking},
	StatusReadyToShip:    {StatusPacked},
	StatusShipped:        {StatusReadyToShip},
	StatusInTransit:      {StatusShipped},
	StatusOutForDelivery: {StatusInTransit},
	StatusDelivered:      {StatusShipped, StatusInTransit, StatusOutForDelivery},
	StatusFailed:         {StatusShipped, StatusInTransit, StatusOutForDelivery},
	StatusCancelled:      {StatusPending, StatusPicking, StatusPacked, StatusReadyToShip},
}

// IsValid reports whether s is a known dispatch status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPicking, StatusPacked, StatusReadyToShip, StatusShipped,
		StatusInTransit, StatusOutForDelivery, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

// InFlight reports whether the goods have left the warehouse and are not settled yet.
func (s Status) InFlight() bool {
	return s == StatusShipped || s == StatusInTransit || s == StatusOutForDelivery
}

// Policy holds the named fulfilment rules.
type Policy struct {
	// AllowPartialFulfillment lets packing complete with fewer units than ordered.
	AllowPartialFulfillment bool
}

// DefaultPolicy permits partial fulfilment.
func DefaultPolicy() Policy {
	return Policy{AllowPartialFulfillment: true}
}

// Dispatch is the fulfilment document of a sales order.
type Dispatch struct {
	ID             int64            `json:"id"`
	Number         string           `json:"number"`
	SalesOrderID   int64            `json:"sales_order_id"`
	WarehouseID    int64            `json:"warehouse_id"`
	Status         Status           `json:"status"`
	Carrier        string           `json:"carrier"`
	TrackingNumber string           `json:"tracking_number"`
	ShippedAt      *time.Time       `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time       `json:"delivered_at,omitempty"`
	CreatedBy      int64            `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Items          []Item           `json:"items"`
	Tracking       []TrackingUpdate `json:"tracking,omitempty"`
}

// Item follows one sales order line. Picked, packed and shipped only ever grow
// and satisfy shipped <= packed <= picked <= ordered.
type Item struct {
	ID               int64 `json:"id"`
	DispatchID       int64 `json:"dispatch_id"`
	SalesOrderItemID int64 `json:"sales_order_item_id"`
	ProductID        int64 `json:"product_id"`
	QuantityOrdered  int64 `json:"quantity_ordered"`
	QuantityPicked   int64 `json:"quantity_picked"`
	QuantityPacked   int64 `json:"quantity_packed"`
	QuantityShipped  int64 `json:"quantity_shipped"`
}

// TrackingUpdate is one carrier or warehouse event.
type TrackingUpdate struct {
	ID         int64     `json:"id"`
	DispatchID int64     `json:"dispatch_id"`
	Status     Status    `json:"status"`
	Location   string    `json:"location,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}
