package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// POStatus tracks a purchase order.
type POStatus string

const (
	PODraft             POStatus = "DRAFT"
	POPending           POStatus = "PENDING"
	POApproved          POStatus = "APPROVED"
	PORejected          POStatus = "REJECTED"
	POSent              POStatus = "SENT"
	POPartiallyReceived POStatus = "PARTIALLY_RECEIVED"
	POReceived          POStatus = "RECEIVED"
	POCancelled         POStatus = "CANCELLED"
)

// POTransitions maps each target status to the statuses it may be entered from.
var POTransitions = shared.Transitions[POStatus]{
	POPending:           {PODraft},
	POApproved:          {POPending},
	PORejected:          {POPending},
	POSent:              {POApproved},
	POPartiallyReceived: {POSent, POReceived},
	POReceived:          {POSent, POPartiallyReceived},
	POCancelled:         {PODraft, POPending, POApproved, POSent},
}

// IsValid reports whether s is a known purchase order status.
func (s POStatus) IsValid() bool {
	switch s {
	case PODraft, POPending, POApproved, PORejected, POSent, POPartiallyReceived, POReceived, POCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s POStatus) IsTerminal() bool {
	return s == PORejected || s == POCancelled
}

// Receivable reports whether goods may be received against the order.
func (s POStatus) Receivable() bool {
	return s == POSent || s == POPartiallyReceived
}

// GRNStatus tracks a goods receipt note.
type GRNStatus string

const (
	GRNDraft               GRNStatus = "DRAFT"
	GRNPendingVerification GRNStatus = "PENDING_VERIFICATION"
	GRNVerified            GRNStatus = "VERIFIED"
	GRNRejected            GRNStatus = "REJECTED"
)

// GRNTransitions maps each target status to the statuses it may be entered from.
var GRNTransitions = shared.Transitions[GRNStatus]{
	GRNPendingVerification: {GRNDraft},
	GRNVerified:            {GRNPendingVerification},
	GRNRejected:            {GRNDraft, GRNPendingVerification},
}

// IsValid reports whether s is a known goods receipt status.
func (s GRNStatus) IsValid() bool {
	switch s {
	case GRNDraft, GRNPendingVerification, GRNVerified, GRNRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s GRNStatus) IsTerminal() bool {
	return s == GRNVerified || s == GRNRejected
}

// PurchaseOrder is an order placed with a supplier for delivery into one warehouse.
type PurchaseOrder struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	SupplierID  int64      `json:"supplier_id"`
	WarehouseID int64      `json:"warehouse_id"`
	Status      POStatus   `json:"status"`
	Currency    string     `json:"currency"`
	ExpectedAt  *time.Time `json:"expected_at,omitempty"`
	Notes       string     `json:"notes"`
	ApprovedBy  *int64     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Items       []POItem   `json:"items"`
}

// Total sums ordered quantity times unit cost over every line.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.UnitCost.Mul(decimal.NewFromInt(item.QuantityOrdered)))
	}
	return total.Round(2)
}

// POItem is one ordered product. QuantityReceived only counts verified receipts.
type POItem struct {
	ID               int64           `json:"id"`
	POID             int64           `json:"po_id"`
	ProductID        int64           `json:"product_id"`
	QuantityOrdered  int64           `json:"quantity_ordered"`
	QuantityReceived int64           `json:"quantity_received"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

// Outstanding is what is still expected from the supplier.
func (i POItem) Outstanding() int64 {
	if i.QuantityReceived >= i.QuantityOrdered {
		return 0
	}
	return i.QuantityOrdered - i.QuantityReceived
}

// GoodsReceipt records a delivery against a purchase order.
type GoodsReceipt struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	POID           int64      `json:"po_id"`
	WarehouseID    int64      `json:"warehouse_id"`
	Status         GRNStatus  `json:"status"`
	HasDiscrepancy bool       `json:"has_discrepancy"`
	Notes          string     `json:"notes"`
	ReceivedBy     int64      `json:"received_by"`
	VerifiedBy     *int64     `json:"verified_by,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Items          []GRNItem  `json:"items"`
}

// GRNItem is the received quantity of one purchase order line. QuantityExpected
// snapshots the line's outstanding quantity when the receipt was created.
type GRNItem struct {
	ID               int64  `json:"id"`
	GRNID            int64  `json:"grn_id"`
	POItemID         int64  `json:"po_item_id"`
	ProductID        int64  `json:"product_id"`
	QuantityExpected int64  `json:"quantity_expected"`
	QuantityReceived int64  `json:"quantity_received"`
	QuantityAccepted int64  `json:"quantity_accepted"`
	QuantityRejected int64  `json:"quantity_rejected"`
	RejectionReason  string `json:"rejection_reason,omitempty"`
}

// POFilter narrows purchase order listings.
type POFilter struct {
	SupplierID int64
	Status     POStatus
	Limit      int
}

// receivedStatus derives the order status after a receipt was verified. ok is
// false when nothing was received yet.
func receivedStatus(items []POItem) (status POStatus, ok bool) {
	all, some := true, false
	for _, item := range items {
		if item.QuantityReceived < item.QuantityOrdered {
			all = false
		}
		if item.QuantityReceived > 0 {
			some = true
		}
	}
	switch {
	case all:
		return POReceived, true
	case some:
		return POPartiallyReceived, true
	}
	return "", false
}
