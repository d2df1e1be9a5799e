package sales

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// CreateOrderInput describes a new order.
type CreateOrderInput struct {
	CustomerID  int64            `json:"customer_id" validate:"required"`
	WarehouseID int64            `json:"warehouse_id" validate:"required"`
	Notes       string           `json:"notes" validate:"max=2000"`
	Items       []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	Actor       int64            `json:"-"`
}

// OrderItemInput is one requested line. TaxRate overrides the jurisdiction's
// default rate where item specific rates apply.
type OrderItemInput struct {
	ProductID       int64            `json:"product_id" validate:"required"`
	Quantity        int64            `json:"quantity" validate:"gt=0"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
}

func (in CreateOrderInput) validate() error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	for i, item := range in.Items {
		switch {
		case item.UnitPrice.IsNegative():
			return fmt.Errorf("%w: items[%d].unit_price must not be negative", shared.ErrValidation, i)
		case item.DiscountPercent.IsNegative() || item.DiscountPercent.GreaterThan(hundred):
			return fmt.Errorf("%w: items[%d].discount_percent must be within 0..100", shared.ErrValidation, i)
		case item.TaxRate != nil && item.TaxRate.IsNegative():
			return fmt.Errorf("%w: items[%d].tax_rate must not be negative", shared.ErrValidation, i)
		}
	}
	return nil
}

var zeroAmount = decimal.Zero

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
