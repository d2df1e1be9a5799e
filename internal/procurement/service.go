package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// approvalModule tags purchase order entries in the approvals table.
const approvalModule = "PO"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter POFilter) ([]PurchaseOrder, error)
	GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error)
	ListGoodsReceipts(ctx context.Context, poID int64) ([]GoodsReceipt, error)
	ListApprovals(ctx context.Context, module string, poID int64) ([]shared.ApprovalLog, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Stock() inventory.StockTx
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	InsertPurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	UpdatePOItemReceived(ctx context.Context, itemID, received int64) error
	HasGoodsReceipts(ctx context.Context, poID int64) (bool, error)
	InsertGoodsReceipt(ctx context.Context, grn *GoodsReceipt) error
	GetGoodsReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateGoodsReceipt(ctx context.Context, grn GoodsReceipt) error
	InsertApproval(ctx context.Context, log shared.ApprovalLog) error
}

// Service orchestrates the purchase order and goods receipt workflows.
type Service struct {
	repo        RepositoryPort
	ledger      *inventory.Ledger
	idempotency *shared.IdempotencyStore
	hooks       shared.Hooks
	now         func() time.Time
}

// NewService constructs procurement service. idem may be nil.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, idem *shared.IdempotencyStore, hooks shared.Hooks) *Service {
	return &Service{
		repo:        repo,
		ledger:      ledger,
		idempotency: idem,
		hooks:       hooks,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreatePurchaseOrder stores a DRAFT purchase order numbered PO...
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if err := input.validate(); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	po := PurchaseOrder{
		SupplierID:  input.SupplierID,
		WarehouseID: input.WarehouseID,
		Status:      PODraft,
		Currency:    defaultString(input.Currency, "USD"),
		ExpectedAt:  input.ExpectedAt,
		Notes:       input.Notes,
		CreatedBy:   input.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range input.Items {
		po.Items = append(po.Items, POItem{ProductID: item.ProductID, QuantityOrdered: item.Quantity, UnitCost: item.UnitCost})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, shared.PrefixPurchaseOrder, now.Year())
		if err != nil {
			return err
		}
		po.Number = shared.FormatDocumentNumber(shared.PrefixPurchaseOrder, now.Year(), seq)
		return tx.InsertPurchaseOrder(ctx, &po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.poCommitted(ctx, po, "PO_CREATE", input.Actor)
	return po, nil
}

// SubmitPurchaseOrder requests approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, id, actor int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, id, POPending, actor, "PO_SUBMIT", func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		return s.recordApproval(ctx, tx, po, actor, shared.ApprovalSubmit, "submitted")
	})
}

// ApprovePurchaseOrder approves a PENDING order and records the approver.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, id, actor int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, id, POApproved, actor, "PO_APPROVE", func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		at := s.now()
		po.ApprovedBy, po.ApprovedAt = &actor, &at
		return s.recordApproval(ctx, tx, po, actor, shared.ApprovalApprove, "approved")
	})
}

// RejectPurchaseOrder rejects a PENDING order.
func (s *Service) RejectPurchaseOrder(ctx context.Context, id, actor int64, reason string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, id, PORejected, actor, "PO_REJECT", func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		note := "rejected"
		if reason != "" {
			note += ": " + reason
		}
		return s.recordApproval(ctx, tx, po, actor, shared.ApprovalReject, note)
	})
}

// SendPurchaseOrder marks an approved order as sent to the supplier.
func (s *Service) SendPurchaseOrder(ctx context.Context, id, actor int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, id, POSent, actor, "PO_SEND", nil)
}

// CancelPurchaseOrder cancels an order nothing was received against yet.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id, actor int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		has, err := tx.HasGoodsReceipts(ctx, id)
		if err != nil {
			return err
		}
		if has {
			return fmt.Errorf("%w: %s", shared.ErrHasGRN, po.Number)
		}
		if err := POTransitions.Guard(po.Status, POCancelled); err != nil {
			return err
		}
		po.Status = POCancelled
		po.UpdatedAt = s.now()
		return tx.UpdatePurchaseOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.poCommitted(ctx, po, "PO_CANCEL", actor)
	return po, nil
}

// CreateGoodsReceipt records a DRAFT delivery against a SENT or PARTIALLY_RECEIVED
// order. Stock is untouched until the receipt is verified.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRNInput) (GoodsReceipt, error) {
	if err := shared.Validate(input); err != nil {
		return GoodsReceipt{}, err
	}
	now := s.now()
	var grn GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPurchaseOrderForUpdate(ctx, input.POID)
		if err != nil {
			return err
		}
		if !po.Status.Receivable() {
			return fmt.Errorf("%w: purchase order %s is %s", shared.ErrInvalidStatus, po.Number, po.Status)
		}
		items, err := receiptItems(po, input.Items)
		if err != nil {
			return err
		}
		grn = GoodsReceipt{
			POID:        po.ID,
			WarehouseID: po.WarehouseID,
			Status:      GRNDraft,
			Notes:       input.Notes,
			ReceivedBy:  input.Actor,
			CreatedAt:   now,
			Items:       items,
		}
		for _, item := range items {
			if item.QuantityReceived != item.QuantityExpected || item.QuantityRejected > 0 {
				grn.HasDiscrepancy = true
			}
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixGRN, now.Year())
		if err != nil {
			return err
		}
		grn.Number = shared.FormatDocumentNumber(shared.PrefixGRN, now.Year(), seq)
		return tx.InsertGoodsReceipt(ctx, &grn)
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.grnCommitted(ctx, grn, "GRN_CREATE", input.Actor)
	return grn, nil
}

// SubmitGoodsReceipt sends a DRAFT receipt for verification.
func (s *Service) SubmitGoodsReceipt(ctx context.Context, id, actor int64) (GoodsReceipt, error) {
	return s.transitionGRN(ctx, id, GRNPendingVerification, actor, "GRN_SUBMIT", nil)
}

// RejectGoodsReceipt discards a receipt without moving stock.
func (s *Service) RejectGoodsReceipt(ctx context.Context, id, actor int64) (GoodsReceipt, error) {
	return s.transitionGRN(ctx, id, GRNRejected, actor, "GRN_REJECT", nil)
}

// VerifyGoodsReceipt books the accepted quantities into stock, advances the
// purchase order lines and recomputes the order status, all in one transaction.
// A non-empty idempotency key makes retries of the same request no-ops.
func (s *Service) VerifyGoodsReceipt(ctx context.Context, id, actor int64, idempotencyKey string) (GoodsReceipt, error) {
	var (
		grn      GoodsReceipt
		po       PurchaseOrder
		poChange bool
	)
	err := s.idempotency.Claim(ctx, idempotencyKey, "procurement.grn", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			grn, err = tx.GetGoodsReceiptForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := GRNTransitions.Guard(grn.Status, GRNVerified); err != nil {
				return err
			}
			po, err = tx.GetPurchaseOrderForUpdate(ctx, grn.POID)
			if err != nil {
				return err
			}
			if !po.Status.Receivable() {
				return fmt.Errorf("%w: purchase order %s is %s", shared.ErrInvalidStatus, po.Number, po.Status)
			}
			lines := make(map[int64]*POItem, len(po.Items))
			for i := range po.Items {
				lines[po.Items[i].ID] = &po.Items[i]
			}
			for _, item := range grn.Items {
				line, ok := lines[item.POItemID]
				if !ok {
					return fmt.Errorf("%w: purchase order item %d", shared.ErrNotFound, item.POItemID)
				}
				if item.QuantityAccepted+item.QuantityRejected > line.Outstanding() {
					return fmt.Errorf("%w: item %d receives %d, outstanding %d", shared.ErrExcessQuantity,
						line.ID, item.QuantityAccepted+item.QuantityRejected, line.Outstanding())
				}
				if item.QuantityAccepted == 0 {
					continue
				}
				if _, err := s.ledger.ApplyMovement(ctx, tx.Stock(), inventory.Movement{
					WarehouseID: grn.WarehouseID,
					ProductID:   item.ProductID,
					Delta:       item.QuantityAccepted,
					Type:        inventory.MovementInward,
					Reference:   inventory.GRNRef(grn.ID),
					Actor:       actor,
				}); err != nil {
					return err
				}
				line.QuantityReceived += item.QuantityAccepted
				if err := tx.UpdatePOItemReceived(ctx, line.ID, line.QuantityReceived); err != nil {
					return err
				}
			}

			if next, ok := receivedStatus(po.Items); ok && next != po.Status {
				if err := POTransitions.Guard(po.Status, next); err != nil {
					return err
				}
				po.Status = next
				po.UpdatedAt = s.now()
				if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
					return err
				}
				poChange = true
			}

			at := s.now()
			grn.Status = GRNVerified
			grn.VerifiedBy, grn.VerifiedAt = &actor, &at
			return tx.UpdateGoodsReceipt(ctx, grn)
		})
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.grnCommitted(ctx, grn, "GRN_VERIFY", actor)
	if poChange {
		s.poCommitted(ctx, po, "PO_RECEIVE", actor)
	}
	return grn, nil
}

// GetPurchaseOrder loads an order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders lists order headers, newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter POFilter) ([]PurchaseOrder, error) {
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	return s.repo.ListPurchaseOrders(ctx, filter)
}

// GetGoodsReceipt loads a receipt with its lines.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error) {
	return s.repo.GetGoodsReceipt(ctx, id)
}

// ListGoodsReceipts lists the receipts of a purchase order.
func (s *Service) ListGoodsReceipts(ctx context.Context, poID int64) ([]GoodsReceipt, error) {
	return s.repo.ListGoodsReceipts(ctx, poID)
}

// ApprovalHistory returns the submit, approve and reject trail of an order.
func (s *Service) ApprovalHistory(ctx context.Context, poID int64) ([]shared.ApprovalLog, error) {
	return s.repo.ListApprovals(ctx, approvalModule, poID)
}

func (s *Service) transitionPO(ctx context.Context, id int64, to POStatus, actor int64, action string, apply func(context.Context, TxRepository, *PurchaseOrder) error) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := POTransitions.Guard(po.Status, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, &po); err != nil {
				return err
			}
		}
		po.Status = to
		po.UpdatedAt = s.now()
		return tx.UpdatePurchaseOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.poCommitted(ctx, po, action, actor)
	return po, nil
}

func (s *Service) transitionGRN(ctx context.Context, id int64, to GRNStatus, actor int64, action string, apply func(context.Context, TxRepository, *GoodsReceipt) error) (GoodsReceipt, error) {
	var grn GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		grn, err = tx.GetGoodsReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := GRNTransitions.Guard(grn.Status, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, &grn); err != nil {
				return err
			}
		}
		grn.Status = to
		return tx.UpdateGoodsReceipt(ctx, grn)
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.grnCommitted(ctx, grn, action, actor)
	return grn, nil
}

// recordApproval appends to the order's approval trail inside tx. Approvals
// need a known actor.
func (s *Service) recordApproval(ctx context.Context, tx TxRepository, po *PurchaseOrder, actor int64, action shared.ApprovalAction, note string) error {
	if actor == 0 {
		return fmt.Errorf("%w: approval actor required", shared.ErrValidation)
	}
	return tx.InsertApproval(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   shared.ApprovalRef(approvalModule, po.ID),
		ActorID: actor,
		Action:  action,
		Note:    fmt.Sprintf("PO %s %s", po.Number, note),
		At:      s.now(),
	})
}

// receiptItems checks every requested line against the order and snapshots the
// outstanding quantity.
func receiptItems(po PurchaseOrder, inputs []GRNItemInput) ([]GRNItem, error) {
	lines := make(map[int64]POItem, len(po.Items))
	for _, item := range po.Items {
		lines[item.ID] = item
	}
	seen := make(map[int64]bool, len(inputs))
	items := make([]GRNItem, 0, len(inputs))
	for _, in := range inputs {
		line, ok := lines[in.POItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not on purchase order %s", shared.ErrValidation, in.POItemID, po.Number)
		}
		if seen[in.POItemID] {
			return nil, fmt.Errorf("%w: item %d listed twice", shared.ErrValidation, in.POItemID)
		}
		seen[in.POItemID] = true
		received := in.Accepted + in.Rejected
		if received == 0 {
			return nil, fmt.Errorf("%w: item %d receives nothing", shared.ErrValidation, in.POItemID)
		}
		if received > line.Outstanding() {
			return nil, fmt.Errorf("%w: item %d receives %d, outstanding %d", shared.ErrExcessQuantity,
				line.ID, received, line.Outstanding())
		}
		items = append(items, GRNItem{
			POItemID:         line.ID,
			ProductID:        line.ProductID,
			QuantityExpected: line.Outstanding(),
			QuantityReceived: received,
			QuantityAccepted: in.Accepted,
			QuantityRejected: in.Rejected,
			RejectionReason:  in.RejectionReason,
		})
	}
	return items, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
