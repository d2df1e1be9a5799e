package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// TransferStatus tracks a warehouse transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferApproved  TransferStatus = "APPROVED"
	TransferInTransit TransferStatus = "IN_TRANSIT"
	TransferReceived  TransferStatus = "RECEIVED"
	TransferCancelled TransferStatus = "CANCELLED"
)

// TransferTransitions maps each target status to the statuses it may be entered from.
var TransferTransitions = shared.Transitions[TransferStatus]{
	TransferApproved:  {TransferPending},
	TransferInTransit: {TransferApproved},
	TransferReceived:  {TransferInTransit},
	TransferCancelled: {TransferPending, TransferApproved},
}

// IsValid reports whether s is a known transfer status.
func (s TransferStatus) IsValid() bool {
	switch s {
	case TransferPending, TransferApproved, TransferInTransit, TransferReceived, TransferCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferReceived || s == TransferCancelled
}

// Transfer moves stock between two warehouses of the same company.
type Transfer struct {
	ID              int64          `json:"id"`
	Number          string         `json:"number"`
	FromWarehouseID int64          `json:"from_warehouse_id"`
	ToWarehouseID   int64          `json:"to_warehouse_id"`
	Status          TransferStatus `json:"status"`
	Notes           string         `json:"notes"`
	CreatedBy       int64          `json:"created_by"`
	ShippedAt       *time.Time     `json:"shipped_at,omitempty"`
	ReceivedAt      *time.Time     `json:"received_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Items           []TransferItem `json:"items"`
}

// TransferItem is one product line of a transfer.
type TransferItem struct {
	ID                int64 `json:"id"`
	TransferID        int64 `json:"transfer_id"`
	ProductID         int64 `json:"product_id"`
	QuantityRequested int64 `json:"quantity_requested"`
	QuantityShipped   int64 `json:"quantity_shipped"`
	QuantityReceived  int64 `json:"quantity_received"`
}

// TransferFilter narrows transfer listings.
type TransferFilter struct {
	Status      TransferStatus
	WarehouseID int64
	Limit       int
}

// CreateTransferInput describes a new transfer.
type CreateTransferInput struct {
	FromWarehouseID int64                     `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   int64                     `json:"to_warehouse_id" validate:"required"`
	Notes           string                    `json:"notes"`
	Items           []CreateTransferItemInput `json:"items" validate:"required,min=1,dive"`
	Actor           int64                     `json:"-"`
}

// CreateTransferItemInput is one requested line.
type CreateTransferItemInput struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"gt=0"`
}

// LineQuantity reports a per-item quantity for ship and receive steps.
type LineQuantity struct {
	ItemID   int64 `json:"item_id" validate:"required"`
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

// CreateTransfer stores a PENDING transfer numbered TRF...
func (s *Service) CreateTransfer(ctx context.Context, input CreateTransferInput) (Transfer, error) {
	if input.FromWarehouseID != 0 && input.FromWarehouseID == input.ToWarehouseID {
		return Transfer{}, fmt.Errorf("%w: warehouse %d", shared.ErrSameWarehouse, input.FromWarehouseID)
	}
	if err := shared.Validate(input); err != nil {
		return Transfer{}, err
	}
	now := s.now()
	t := Transfer{
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		Status:          TransferPending,
		Notes:           input.Notes,
		CreatedBy:       input.Actor,
		CreatedAt:       now,
	}
	for _, item := range input.Items {
		t.Items = append(t.Items, TransferItem{ProductID: item.ProductID, QuantityRequested: item.Quantity})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, shared.PrefixTransfer, now.Year())
		if err != nil {
			return err
		}
		t.Number = shared.FormatDocumentNumber(shared.PrefixTransfer, now.Year(), seq)
		return tx.InsertTransfer(ctx, &t)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.transferCommitted(ctx, t, "TRANSFER_CREATE", input.Actor)
	return t, nil
}

// ApproveTransfer reserves every requested quantity at the source warehouse.
func (s *Service) ApproveTransfer(ctx context.Context, id, actor int64) (Transfer, error) {
	t, err := s.updateTransfer(ctx, id, TransferApproved, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		for _, item := range t.Items {
			if err := s.reservations.Reserve(ctx, tx, t.FromWarehouseID, item.ProductID, item.QuantityRequested); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.transferCommitted(ctx, t, "TRANSFER_APPROVE", actor)
	return t, nil
}

// ShipTransfer records shipped quantities and moves the transfer IN_TRANSIT. Stock
// stays reserved at the source until the transfer is received. Items missing from
// lines ship their full requested quantity.
func (s *Service) ShipTransfer(ctx context.Context, id int64, lines []LineQuantity, actor int64) (Transfer, error) {
	shipped := quantitiesByItem(lines)
	t, err := s.updateTransfer(ctx, id, TransferInTransit, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if err := checkKnownItems(t.Items, shipped); err != nil {
			return err
		}
		now := s.now()
		t.ShippedAt = &now
		for i := range t.Items {
			item := &t.Items[i]
			qty, ok := shipped[item.ID]
			if !ok {
				qty = item.QuantityRequested
			}
			if qty < 0 || qty > item.QuantityRequested {
				return fmt.Errorf("%w: item %d ships %d of %d requested", shared.ErrExcessQuantity, item.ID, qty, item.QuantityRequested)
			}
			item.QuantityShipped = qty
			if err := tx.UpdateTransferItem(ctx, *item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.transferCommitted(ctx, t, "TRANSFER_SHIP", actor)
	return t, nil
}

// ReceiveTransfer consumes shipped stock at the source, releases the unshipped
// remainder and books received quantities at the destination. Received may be
// lower than shipped; the gap is stock lost in transit. Items missing from lines
// are received in full.
func (s *Service) ReceiveTransfer(ctx context.Context, id int64, lines []LineQuantity, actor int64) (Transfer, error) {
	received := quantitiesByItem(lines)
	var touched []Record
	t, err := s.updateTransfer(ctx, id, TransferReceived, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if err := checkKnownItems(t.Items, received); err != nil {
			return err
		}
		now := s.now()
		t.ReceivedAt = &now
		ref := TransferRef(t.ID)
		for i := range t.Items {
			item := &t.Items[i]
			qty, ok := received[item.ID]
			if !ok {
				qty = item.QuantityShipped
			}
			if qty < 0 || qty > item.QuantityShipped {
				return fmt.Errorf("%w: item %d receives %d of %d shipped", shared.ErrExcessQuantity, item.ID, qty, item.QuantityShipped)
			}
			if item.QuantityShipped > 0 {
				if _, err := s.reservations.Consume(ctx, tx, ConsumeInput{
					WarehouseID: t.FromWarehouseID,
					ProductID:   item.ProductID,
					Qty:         item.QuantityShipped,
					Type:        MovementTransferOut,
					Reference:   ref,
					Actor:       actor,
				}); err != nil {
					return err
				}
			}
			if rest := item.QuantityRequested - item.QuantityShipped; rest > 0 {
				if err := s.reservations.Release(ctx, tx, t.FromWarehouseID, item.ProductID, rest); err != nil {
					return err
				}
			}
			if qty > 0 {
				if _, err := s.ledger.ApplyMovement(ctx, tx, Movement{
					WarehouseID: t.ToWarehouseID,
					ProductID:   item.ProductID,
					Delta:       qty,
					Type:        MovementTransferIn,
					Reference:   ref,
					Actor:       actor,
				}); err != nil {
					return err
				}
			}
			item.QuantityReceived = qty
			if err := tx.UpdateTransferItem(ctx, *item); err != nil {
				return err
			}
			src, err := tx.LockRecord(ctx, t.FromWarehouseID, item.ProductID)
			if err == nil {
				touched = append(touched, src)
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.transferCommitted(ctx, t, "TRANSFER_RECEIVE", actor)
	s.notifyLowStock(ctx, actor, touched...)
	return t, nil
}

// CancelTransfer cancels a PENDING or APPROVED transfer, releasing reservations
// taken at approval.
func (s *Service) CancelTransfer(ctx context.Context, id, actor int64) (Transfer, error) {
	t, err := s.updateTransfer(ctx, id, TransferCancelled, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if t.Status != TransferApproved {
			return nil
		}
		for _, item := range t.Items {
			if err := s.reservations.Release(ctx, tx, t.FromWarehouseID, item.ProductID, item.QuantityRequested); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.transferCommitted(ctx, t, "TRANSFER_CANCEL", actor)
	return t, nil
}

// GetTransfer loads a transfer with its items.
func (s *Service) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers lists transfers, newest first.
func (s *Service) ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error) {
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	return s.repo.ListTransfers(ctx, filter)
}

// updateTransfer locks the transfer, guards the transition, runs apply with the
// pre-transition status still set, then persists the new status.
func (s *Service) updateTransfer(ctx context.Context, id int64, to TransferStatus, apply func(context.Context, TxRepository, *Transfer) error) (Transfer, error) {
	var t Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		t, err = tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := TransferTransitions.Guard(t.Status, to); err != nil {
			return err
		}
		if err := apply(ctx, tx, &t); err != nil {
			return err
		}
		t.Status = to
		return tx.UpdateTransfer(ctx, t)
	})
	if err != nil {
		return Transfer{}, err
	}
	return t, nil
}

func (s *Service) transferCommitted(ctx context.Context, t Transfer, action string, actor int64) {
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "warehouse_transfer",
		Action:   action,
		EntityID: t.ID,
		Number:   t.Number,
		Status:   string(t.Status),
		ActorID:  actor,
		Meta:     map[string]any{"from_warehouse_id": t.FromWarehouseID, "to_warehouse_id": t.ToWarehouseID},
	})
}

func quantitiesByItem(lines []LineQuantity) map[int64]int64 {
	out := make(map[int64]int64, len(lines))
	for _, l := range lines {
		out[l.ItemID] += l.Quantity
	}
	return out
}

func checkKnownItems(items []TransferItem, lines map[int64]int64) error {
	known := make(map[int64]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}
	for id := range lines {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, id)
		}
	}
	return nil
}
