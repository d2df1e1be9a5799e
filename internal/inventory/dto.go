package inventory

// adjustmentRequest is the body of POST /inventory/adjustments.
type adjustmentRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ProductID   int64  `json:"product_id" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"required"`
	Reason      string `json:"reason" validate:"max=500"`
}

// damageRequest is the body of POST /inventory/damages.
type damageRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ProductID   int64  `json:"product_id" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"gt=0"`
	Reason      string `json:"reason" validate:"max=500"`
}

type reorderPointRequest struct {
	WarehouseID  int64 `json:"warehouse_id" validate:"required"`
	ProductID    int64 `json:"product_id" validate:"required"`
	ReorderPoint int64 `json:"reorder_point" validate:"gte=0"`
}

type transferLinesRequest struct {
	Items []LineQuantity `json:"items" validate:"dive"`
}
