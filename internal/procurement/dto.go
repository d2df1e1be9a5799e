package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	SupplierID  int64         `json:"supplier_id" validate:"required"`
	WarehouseID int64         `json:"warehouse_id" validate:"required"`
	Currency    string        `json:"currency" validate:"omitempty,len=3"`
	ExpectedAt  *time.Time    `json:"expected_at"`
	Notes       string        `json:"notes" validate:"max=2000"`
	Items       []POItemInput `json:"items" validate:"required,min=1,dive"`
	Actor       int64         `json:"-"`
}

// POItemInput is one ordered product.
type POItemInput struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

func (in CreatePOInput) validate() error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	for i, item := range in.Items {
		if item.UnitCost.IsNegative() {
			return fmt.Errorf("%w: items[%d].unit_cost must not be negative", shared.ErrValidation, i)
		}
	}
	return nil
}

// CreateGRNInput describes a delivery against a purchase order.
type CreateGRNInput struct {
	POID  int64          `json:"po_id" validate:"required"`
	Notes string         `json:"notes" validate:"max=2000"`
	Items []GRNItemInput `json:"items" validate:"required,min=1,dive"`
	Actor int64          `json:"-"`
}

// GRNItemInput splits the delivered quantity of one order line into accepted
// and rejected units.
type GRNItemInput struct {
	POItemID        int64  `json:"po_item_id" validate:"required"`
	Accepted        int64  `json:"accepted" validate:"gte=0"`
	Rejected        int64  `json:"rejected" validate:"gte=0"`
	RejectionReason string `json:"rejection_reason" validate:"max=500"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
