package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, warehouseID, productID int64) (Record, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	ListLowStock(ctx context.Context, warehouseID int64, limit int) ([]Record, error)
	SumLedger(ctx context.Context, warehouseID, productID int64) (int64, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockTx
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	SetReorderPoint(ctx context.Context, warehouseID, productID, point int64) error
	InsertTransfer(ctx context.Context, t *Transfer) error
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	UpdateTransferItem(ctx context.Context, item TransferItem) error
}

// Service coordinates standalone inventory operations and warehouse transfers.
type Service struct {
	repo         RepositoryPort
	ledger       *Ledger
	reservations *Reservations
	idempotency  *shared.IdempotencyStore
	hooks        shared.Hooks
	logger       *slog.Logger
	now          func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, reservations *Reservations, idem *shared.IdempotencyStore, hooks shared.Hooks, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		ledger:       reservations.Ledger(),
		reservations: reservations,
		idempotency:  idem,
		hooks:        hooks,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	IdempotencyKey string
	WarehouseID    int64 `validate:"required"`
	ProductID      int64 `validate:"required"`
	// Qty is signed: positive adds stock, negative removes free stock.
	Qty    int64 `validate:"required"`
	Reason string
	Actor  int64
}

// AdjustmentResult reports the posted adjustment.
type AdjustmentResult struct {
	Number      string      `json:"number"`
	Transaction Transaction `json:"transaction"`
	Record      Record      `json:"record"`
}

// PostAdjustment applies a manual ADJUSTMENT movement in its own transaction.
// Requests repeating an IdempotencyKey fail with shared.ErrIdempotencyConflict.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if err := shared.Validate(input); err != nil {
		return AdjustmentResult{}, err
	}
	var result AdjustmentResult
	err := s.idempotency.Claim(ctx, input.IdempotencyKey, "inventory.adjustment", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, ref, err := s.nextAdjustment(ctx, tx)
			if err != nil {
				return err
			}
			entry, err := s.ledger.ApplyMovement(ctx, tx, Movement{
				WarehouseID: input.WarehouseID,
				ProductID:   input.ProductID,
				Delta:       input.Qty,
				Type:        MovementAdjustment,
				Reference:   ref,
				Actor:       input.Actor,
			})
			if err != nil {
				return err
			}
			rec, err := tx.LockRecord(ctx, input.WarehouseID, input.ProductID)
			if err != nil {
				return err
			}
			result = AdjustmentResult{Number: number, Transaction: entry, Record: rec}
			return nil
		})
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "inventory_adjustment",
		Action:   "ADJUSTMENT_POSTED",
		EntityID: result.Transaction.ID,
		Number:   result.Number,
		ActorID:  input.Actor,
		Meta: map[string]any{
			"warehouse_id": input.WarehouseID,
			"product_id":   input.ProductID,
			"qty":          input.Qty,
			"reason":       input.Reason,
		},
	})
	s.notifyLowStock(ctx, input.Actor, result.Record)
	return result, nil
}

// DamageInput moves free stock into the damaged bucket.
type DamageInput struct {
	WarehouseID int64 `validate:"required"`
	ProductID   int64 `validate:"required"`
	Qty         int64 `validate:"gt=0"`
	Reason      string
	Actor       int64
}

// PostDamage writes a DAMAGE movement: Available drops by Qty and Damaged grows by Qty.
func (s *Service) PostDamage(ctx context.Context, input DamageInput) (AdjustmentResult, error) {
	if err := shared.Validate(input); err != nil {
		return AdjustmentResult{}, err
	}
	var result AdjustmentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, ref, err := s.nextAdjustment(ctx, tx)
		if err != nil {
			return err
		}
		entry, err := s.ledger.ApplyMovement(ctx, tx, Movement{
			WarehouseID:  input.WarehouseID,
			ProductID:    input.ProductID,
			Delta:        -input.Qty,
			DamagedDelta: input.Qty,
			Type:         MovementDamage,
			Reference:    ref,
			Actor:        input.Actor,
		})
		if err != nil {
			return err
		}
		rec, err := tx.LockRecord(ctx, input.WarehouseID, input.ProductID)
		if err != nil {
			return err
		}
		result = AdjustmentResult{Number: number, Transaction: entry, Record: rec}
		return nil
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "inventory_adjustment",
		Action:   "DAMAGE_POSTED",
		EntityID: result.Transaction.ID,
		Number:   result.Number,
		ActorID:  input.Actor,
		Meta:     map[string]any{"product_id": input.ProductID, "qty": input.Qty, "reason": input.Reason},
	})
	s.notifyLowStock(ctx, input.Actor, result.Record)
	return result, nil
}

// nextAdjustment allocates an ADJ number. The reference id is the numeric part of
// the number, so it stays unique across years.
func (s *Service) nextAdjustment(ctx context.Context, tx TxRepository) (string, AdjustmentRef, error) {
	year := s.now().Year()
	seq, err := tx.NextSequence(ctx, shared.PrefixAdjustment, year)
	if err != nil {
		return "", 0, err
	}
	number := shared.FormatDocumentNumber(shared.PrefixAdjustment, year, seq)
	id, err := strconv.ParseInt(strings.TrimPrefix(number, shared.PrefixAdjustment), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("inventory: adjustment number %s: %w", number, err)
	}
	return number, AdjustmentRef(id), nil
}

// GetStock returns the record for a pair.
func (s *Service) GetStock(ctx context.Context, warehouseID, productID int64) (Record, error) {
	if warehouseID == 0 || productID == 0 {
		return Record{}, fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	return s.repo.GetRecord(ctx, warehouseID, productID)
}

// History lists ledger rows, newest first.
func (s *Service) History(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	return s.repo.ListTransactions(ctx, filter)
}

// SetReorderPoint configures the low-stock threshold of a pair.
func (s *Service) SetReorderPoint(ctx context.Context, warehouseID, productID, point int64) error {
	if warehouseID == 0 || productID == 0 || point < 0 {
		return fmt.Errorf("%w: warehouse, product and non-negative reorder point required", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.EnsureRecord(ctx, warehouseID, productID); err != nil {
			return err
		}
		return tx.SetReorderPoint(ctx, warehouseID, productID, point)
	})
}

// LowStock lists records whose free quantity is at or below their reorder point.
// A zero warehouseID covers every warehouse.
func (s *Service) LowStock(ctx context.Context, warehouseID int64, limit int) ([]Record, error) {
	return s.repo.ListLowStock(ctx, warehouseID, shared.NormalizeLimit(limit))
}

// ReconcileResult compares a record against the sum of its ledger rows.
type ReconcileResult struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	Available   int64 `json:"available"`
	LedgerSum   int64 `json:"ledger_sum"`
	Balanced    bool  `json:"balanced"`
}

// Reconcile checks that Available equals the signed sum of the pair's ledger rows.
func (s *Service) Reconcile(ctx context.Context, warehouseID, productID int64) (ReconcileResult, error) {
	res := ReconcileResult{WarehouseID: warehouseID, ProductID: productID}
	rec, err := s.repo.GetRecord(ctx, warehouseID, productID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return res, err
	}
	sum, err := s.repo.SumLedger(ctx, warehouseID, productID)
	if err != nil {
		return res, err
	}
	res.Available = rec.Available
	res.LedgerSum = sum
	res.Balanced = rec.Available == sum
	if !res.Balanced {
		s.logger.Warn("inventory ledger out of balance",
			slog.Int64("warehouse_id", warehouseID),
			slog.Int64("product_id", productID),
			slog.Int64("available", rec.Available),
			slog.Int64("ledger_sum", sum))
	}
	return res, nil
}

func (s *Service) notifyLowStock(ctx context.Context, actor int64, recs ...Record) {
	for _, rec := range recs {
		if rec.BelowReorderPoint() {
			s.hooks.Committed(ctx, LowStockEvent(rec, actor))
		}
	}
}
