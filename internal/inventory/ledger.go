package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// MovementRecorder observes applied movements, e.g. for metrics.
type MovementRecorder interface {
	RecordMovement(movementType string, quantity int64)
}

// Ledger applies stock movements and appends their ledger rows. It never opens or
// commits transactions; callers pass the StockTx of their own unit of work.
type Ledger struct {
	now     func() time.Time
	metrics MovementRecorder
}

// NewLedger constructs a Ledger. metrics may be nil.
func NewLedger(metrics MovementRecorder) *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }, metrics: metrics}
}

// ApplyMovement locks the (warehouse, product) record, applies m and writes one
// ledger row. Inward movements create the record on first sight; outward movements
// against a missing record fail with shared.ErrNotFound. Any movement leaving
// negative counters, or an outward movement that would dip into reserved stock,
// fails with shared.ErrInsufficientStock.
func (l *Ledger) ApplyMovement(ctx context.Context, tx StockTx, m Movement) (Transaction, error) {
	if err := validateMovement(m); err != nil {
		return Transaction{}, err
	}
	inward := m.Delta > 0
	if inward {
		if err := tx.EnsureRecord(ctx, m.WarehouseID, m.ProductID); err != nil {
			return Transaction{}, err
		}
	}
	rec, err := tx.LockRecord(ctx, m.WarehouseID, m.ProductID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Transaction{}, fmt.Errorf("%w: inventory record warehouse=%d product=%d", shared.ErrNotFound, m.WarehouseID, m.ProductID)
		}
		return Transaction{}, err
	}

	before := rec.Available
	rec.Available += m.Delta
	rec.Reserved += m.ReservedDelta
	if rec.Reserved < 0 {
		rec.Reserved = 0
	}
	rec.Damaged += m.DamagedDelta

	switch {
	case rec.Available < 0:
		return Transaction{}, fmt.Errorf("%w: product %d in warehouse %d has %d, needs %d",
			shared.ErrInsufficientStock, m.ProductID, m.WarehouseID, before, -m.Delta)
	case rec.Damaged < 0:
		return Transaction{}, fmt.Errorf("%w: damaged stock for product %d cannot go negative", shared.ErrInsufficientStock, m.ProductID)
	case !inward && rec.Available < rec.Reserved:
		return Transaction{}, fmt.Errorf("%w: product %d in warehouse %d has %d free, needs %d",
			shared.ErrInsufficientStock, m.ProductID, m.WarehouseID, before-(rec.Reserved-m.ReservedDelta), -m.Delta)
	}

	now := l.now()
	rec.UpdatedAt = now
	if err := tx.SaveRecord(ctx, rec); err != nil {
		return Transaction{}, err
	}
	entry := Transaction{
		WarehouseID:    m.WarehouseID,
		ProductID:      m.ProductID,
		Type:           m.Type,
		Quantity:       m.Delta,
		QuantityBefore: before,
		QuantityAfter:  rec.Available,
		Reference:      m.Reference,
		CreatedBy:      m.Actor,
		CreatedAt:      now,
	}
	id, err := tx.InsertTransaction(ctx, entry)
	if err != nil {
		return Transaction{}, err
	}
	entry.ID = id
	if l.metrics != nil {
		l.metrics.RecordMovement(string(m.Type), m.Delta)
	}
	return entry, nil
}

func validateMovement(m Movement) error {
	switch {
	case m.WarehouseID == 0 || m.ProductID == 0:
		return fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	case m.Reference == nil:
		return fmt.Errorf("%w: movement reference required", shared.ErrValidation)
	case !m.Type.IsValid():
		return fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, m.Type)
	case !m.Type.acceptsDelta(m.Delta):
		return fmt.Errorf("%w: %s movement cannot carry quantity %d", shared.ErrValidation, m.Type, m.Delta)
	}
	return nil
}
