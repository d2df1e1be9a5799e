package inventory

import (
	"context"
	"errors"
	"time"
)

// MovementType enumerates ledger movement kinds.
type MovementType string

const (
	MovementInward      MovementType = "INWARD"
	MovementOutward     MovementType = "OUTWARD"
	MovementAdjustment  MovementType = "ADJUSTMENT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementReturn      MovementType = "RETURN"
	MovementDamage      MovementType = "DAMAGE"
)

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementInward, MovementOutward, MovementAdjustment, MovementTransferIn,
		MovementTransferOut, MovementReturn, MovementDamage:
		return true
	}
	return false
}

// IsInward reports whether the movement type adds stock. Positive adjustments are
// inward as well; the ledger decides on the delta sign for those.
func (t MovementType) IsInward() bool {
	switch t {
	case MovementInward, MovementTransferIn, MovementReturn:
		return true
	}
	return false
}

// acceptsDelta reports whether the sign of delta matches the movement direction.
// Adjustments go either way.
func (t MovementType) acceptsDelta(delta int64) bool {
	switch t {
	case MovementInward, MovementTransferIn, MovementReturn:
		return delta > 0
	case MovementOutward, MovementTransferOut, MovementDamage:
		return delta < 0
	case MovementAdjustment:
		return delta != 0
	}
	return false
}

// Record is the stock row for one (warehouse, product) pair. Available counts
// physical sellable units; Reserved is the part of Available held for orders.
type Record struct {
	WarehouseID  int64     `json:"warehouse_id"`
	ProductID    int64     `json:"product_id"`
	Available    int64     `json:"available"`
	Reserved     int64     `json:"reserved"`
	Damaged      int64     `json:"damaged"`
	ReorderPoint int64     `json:"reorder_point"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Free is the quantity that can still be reserved or issued.
func (r Record) Free() int64 {
	return r.Available - r.Reserved
}

// BelowReorderPoint reports whether free stock fell to the reorder point.
func (r Record) BelowReorderPoint() bool {
	return r.ReorderPoint > 0 && r.Free() <= r.ReorderPoint
}

// Transaction is an immutable ledger row. Quantity is signed: inward positive,
// outward negative. QuantityBefore/After snapshot Available.
type Transaction struct {
	ID             int64        `json:"id"`
	WarehouseID    int64        `json:"warehouse_id"`
	ProductID      int64        `json:"product_id"`
	Type           MovementType `json:"type"`
	Quantity       int64        `json:"quantity"`
	QuantityBefore int64        `json:"quantity_before"`
	QuantityAfter  int64        `json:"quantity_after"`
	Reference      Reference    `json:"-"`
	CreatedBy      int64        `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Movement is a request to change stock through the ledger.
type Movement struct {
	WarehouseID int64
	ProductID   int64
	// Delta changes Available.
	Delta int64
	// ReservedDelta changes Reserved; negative values floor at zero.
	ReservedDelta int64
	// DamagedDelta changes Damaged.
	DamagedDelta int64
	Type         MovementType
	Reference    Reference
	Actor        int64
}

// TransactionResponse is the wire shape of a ledger row.
type TransactionResponse struct {
	Transaction
	ReferenceType ReferenceKind `json:"reference_type"`
	ReferenceID   int64         `json:"reference_id"`
}

// Response flattens the reference union for JSON output.
func (t Transaction) Response() TransactionResponse {
	resp := TransactionResponse{Transaction: t}
	if t.Reference != nil {
		resp.ReferenceType = t.Reference.Kind()
		resp.ReferenceID = t.Reference.ID()
	}
	return resp
}

// TransactionFilter narrows ledger history queries.
type TransactionFilter struct {
	WarehouseID int64
	ProductID   int64
	Reference   Reference
	Limit       int
}

// StockTx is the transactional stock storage the ledger and reservation engine
// operate on. Implementations share the caller's database transaction.
type StockTx interface {
	// EnsureRecord creates a zeroed record for the pair when none exists.
	EnsureRecord(ctx context.Context, warehouseID, productID int64) error
	// LockRecord reads the record holding an exclusive row lock until the
	// transaction ends. Missing rows return ErrRecordNotFound.
	LockRecord(ctx context.Context, warehouseID, productID int64) (Record, error)
	// SaveRecord writes counters of a locked record.
	SaveRecord(ctx context.Context, rec Record) error
	InsertTransaction(ctx context.Context, t Transaction) (int64, error)
}

// ErrRecordNotFound indicates a missing inventory_records row.
var ErrRecordNotFound = errors.New("inventory: record not found")
