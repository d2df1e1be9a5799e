package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Reservations holds and releases stock for orders and transfers. Every call runs
// under the same row lock as the Ledger, inside the caller's transaction.
type Reservations struct {
	ledger *Ledger
}

// NewReservations builds the reservation engine on top of ledger.
func NewReservations(ledger *Ledger) *Reservations {
	return &Reservations{ledger: ledger}
}

// Ledger exposes the underlying ledger for workflows that also post plain movements.
func (r *Reservations) Ledger() *Ledger {
	return r.ledger
}

// Reserve raises Reserved by qty when enough free stock exists. Available is untouched.
func (r *Reservations) Reserve(ctx context.Context, tx StockTx, warehouseID, productID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity must be positive", shared.ErrValidation)
	}
	rec, err := tx.LockRecord(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return fmt.Errorf("%w: product %d has no stock in warehouse %d", shared.ErrInsufficientInventory, productID, warehouseID)
		}
		return err
	}
	if rec.Free() < qty {
		return fmt.Errorf("%w: product %d in warehouse %d has %d free, requested %d",
			shared.ErrInsufficientInventory, productID, warehouseID, rec.Free(), qty)
	}
	rec.Reserved += qty
	return tx.SaveRecord(ctx, rec)
}

// Release lowers Reserved by qty, never below zero. Releasing against a missing
// record is a no-op.
func (r *Reservations) Release(ctx context.Context, tx StockTx, warehouseID, productID, qty int64) error {
	if qty <= 0 {
		return nil
	}
	rec, err := tx.LockRecord(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}
	rec.Reserved -= qty
	if rec.Reserved < 0 {
		rec.Reserved = 0
	}
	return tx.SaveRecord(ctx, rec)
}

// ConsumeInput describes stock leaving the warehouse against a reservation.
type ConsumeInput struct {
	WarehouseID int64
	ProductID   int64
	Qty         int64
	// Type defaults to OUTWARD.
	Type      MovementType
	Reference Reference
	Actor     int64
}

// Consume lowers both Available and Reserved by Qty and appends the ledger row.
func (r *Reservations) Consume(ctx context.Context, tx StockTx, in ConsumeInput) (Transaction, error) {
	if in.Qty <= 0 {
		return Transaction{}, fmt.Errorf("%w: consume quantity must be positive", shared.ErrValidation)
	}
	movementType := in.Type
	if movementType == "" {
		movementType = MovementOutward
	}
	return r.ledger.ApplyMovement(ctx, tx, Movement{
		WarehouseID:   in.WarehouseID,
		ProductID:     in.ProductID,
		Delta:         -in.Qty,
		ReservedDelta: -in.Qty,
		Type:          movementType,
		Reference:     in.Reference,
		Actor:         in.Actor,
	})
}
