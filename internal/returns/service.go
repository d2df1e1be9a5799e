package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReturn(ctx context.Context, id int64) (Return, error)
	ListReturns(ctx context.Context, filter Filter) ([]Return, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Orders() sales.OrderTx
	Stock() inventory.StockTx
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	// ReturnedQuantities sums requested quantities per sales order item over
	// the order's returns that were not rejected.
	ReturnedQuantities(ctx context.Context, salesOrderID int64) (map[int64]int64, error)
	// ShippedQuantities sums shipped quantities per sales order item over the
	// order's dispatches.
	ShippedQuantities(ctx context.Context, salesOrderID int64) (map[int64]int64, error)
	InsertReturn(ctx context.Context, rma *Return) error
	GetReturnForUpdate(ctx context.Context, id int64) (Return, error)
	UpdateReturn(ctx context.Context, rma Return) error
	UpdateReturnItem(ctx context.Context, item Item) error
}

// Service orchestrates return merchandise authorizations.
type Service struct {
	repo        RepositoryPort
	ledger      *inventory.Ledger
	idempotency *shared.IdempotencyStore
	hooks       shared.Hooks
	now         func() time.Time
}

// NewService constructs the returns service. idem may be nil.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, idem *shared.IdempotencyStore, hooks shared.Hooks) *Service {
	return &Service{
		repo:        repo,
		ledger:      ledger,
		idempotency: idem,
		hooks:       hooks,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a REQUESTED return numbered RMA... for a SHIPPED or DELIVERED order.
func (s *Service) Create(ctx context.Context, input CreateInput) (Return, error) {
	if err := shared.Validate(input); err != nil {
		return Return{}, err
	}
	now := s.now()
	rma := Return{
		SalesOrderID: input.SalesOrderID,
		Status:       StatusRequested,
		Reason:       input.Reason,
		Deductions:   decimal.Zero,
		RefundAmount: decimal.Zero,
		CreatedBy:    input.Actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.Orders().GetOrderForUpdate(ctx, input.SalesOrderID)
		if err != nil {
			return err
		}
		if order.Status != sales.OrderShipped && order.Status != sales.OrderDelivered {
			return fmt.Errorf("%w: sales order %s is %s", shared.ErrInvalidStatus, order.Number, order.Status)
		}
		orderItems, err := tx.Orders().ListOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		returned, err := tx.ReturnedQuantities(ctx, order.ID)
		if err != nil {
			return err
		}
		shipped, err := tx.ShippedQuantities(ctx, order.ID)
		if err != nil {
			return err
		}
		rma.CustomerID, rma.WarehouseID = order.CustomerID, order.WarehouseID
		rma.Items, err = returnItems(orderItems, shipped, returned, input.Items)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixReturn, now.Year())
		if err != nil {
			return err
		}
		rma.Number = shared.FormatDocumentNumber(shared.PrefixReturn, now.Year(), seq)
		return tx.InsertReturn(ctx, &rma)
	})
	if err != nil {
		return Return{}, err
	}
	s.committed(ctx, rma, "RMA_CREATE", input.Actor)
	return rma, nil
}

// returnItems caps every line at what left the warehouse for it minus what
// open or settled returns already claim.
func returnItems(orderItems []sales.OrderItem, shipped, returned map[int64]int64, lines []LineInput) ([]Item, error) {
	byID := make(map[int64]sales.OrderItem, len(orderItems))
	for _, oi := range orderItems {
		byID[oi.ID] = oi
	}
	items := make([]Item, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for i, line := range lines {
		oi, ok := byID[line.SalesOrderItemID]
		if !ok {
			return nil, fmt.Errorf("%w: items[%d] sales order item %d is not on the order", shared.ErrValidation, i, line.SalesOrderItemID)
		}
		if seen[oi.ID] {
			return nil, fmt.Errorf("%w: items[%d] duplicates sales order item %d", shared.ErrValidation, i, oi.ID)
		}
		seen[oi.ID] = true
		if left := min(oi.Quantity, shipped[oi.ID]) - returned[oi.ID]; line.Quantity > left {
			return nil, fmt.Errorf("%w: sales order item %d has %d returnable, requested %d", shared.ErrExcessQuantity, oi.ID, left, line.Quantity)
		}
		items = append(items, Item{
			SalesOrderItemID: oi.ID,
			ProductID:        oi.ProductID,
			Quantity:         line.Quantity,
			UnitPrice:        oi.UnitPrice,
		})
	}
	return items, nil
}

// Approve authorizes the customer to send the goods back.
func (s *Service) Approve(ctx context.Context, id, actor int64) (Return, error) {
	return s.transition(ctx, id, StatusApproved, actor, "RMA_APPROVE", nil)
}

// Reject declines a REQUESTED return. Its quantities become returnable again.
func (s *Service) Reject(ctx context.Context, id, actor int64, reason string) (Return, error) {
	return s.transition(ctx, id, StatusRejected, actor, "RMA_REJECT", func(_ context.Context, _ TxRepository, rma *Return) error {
		if reason != "" {
			rma.Reason += "\nrejected: " + reason
		}
		return nil
	})
}

// Receive records the units that arrived. Without lines every item is received in full.
func (s *Service) Receive(ctx context.Context, id int64, lines []ReceiveLine, actor int64) (Return, error) {
	for i, line := range lines {
		if line.ItemID == 0 || line.Quantity < 0 {
			return Return{}, fmt.Errorf("%w: items[%d] needs an item and a non-negative quantity", shared.ErrValidation, i)
		}
	}
	return s.transition(ctx, id, StatusReceived, actor, "RMA_RECEIVE", func(ctx context.Context, tx TxRepository, rma *Return) error {
		received := make(map[int64]int64, len(rma.Items))
		if len(lines) == 0 {
			for _, item := range rma.Items {
				received[item.ID] = item.Quantity
			}
		}
		for _, line := range lines {
			if _, dup := received[line.ItemID]; dup {
				return fmt.Errorf("%w: item %d listed twice", shared.ErrValidation, line.ItemID)
			}
			received[line.ItemID] = line.Quantity
		}
		for id := range received {
			if rma.item(id) == nil {
				return fmt.Errorf("%w: item %d is not on return %s", shared.ErrValidation, id, rma.Number)
			}
		}
		for i := range rma.Items {
			item := &rma.Items[i]
			qty := received[item.ID]
			if qty > item.Quantity {
				return fmt.Errorf("%w: item %d received %d of %d requested", shared.ErrExcessQuantity, item.ID, qty, item.Quantity)
			}
			item.QuantityReceived = qty
			if err := tx.UpdateReturnItem(ctx, *item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Inspect grades the received units and fixes the deductions.
func (s *Service) Inspect(ctx context.Context, id int64, input InspectInput, actor int64) (Return, error) {
	if err := shared.Validate(input); err != nil {
		return Return{}, err
	}
	if input.Deductions.IsNegative() {
		return Return{}, fmt.Errorf("%w: deductions must not be negative", shared.ErrValidation)
	}
	return s.transition(ctx, id, StatusInspected, actor, "RMA_INSPECT", func(ctx context.Context, tx TxRepository, rma *Return) error {
		seen := make(map[int64]bool, len(input.Items))
		for _, line := range input.Items {
			if seen[line.ItemID] {
				return fmt.Errorf("%w: item %d listed twice", shared.ErrValidation, line.ItemID)
			}
			seen[line.ItemID] = true
			item := rma.item(line.ItemID)
			if item == nil {
				return fmt.Errorf("%w: item %d is not on return %s", shared.ErrValidation, line.ItemID, rma.Number)
			}
			if line.Accepted > item.QuantityReceived {
				return fmt.Errorf("%w: item %d accepts %d of %d received", shared.ErrExcessQuantity, item.ID, line.Accepted, item.QuantityReceived)
			}
			item.QuantityAccepted = line.Accepted
			item.Condition = line.Condition
			item.Restockable = line.Restockable
			if err := tx.UpdateReturnItem(ctx, *item); err != nil {
				return err
			}
		}
		rma.Deductions = input.Deductions
		return nil
	})
}

// Process restocks accepted restockable units with INWARD ledger rows and fixes
// the refund amount. Retries with the same idempotency key are rejected.
func (s *Service) Process(ctx context.Context, id, actor int64, idempotencyKey string) (Return, error) {
	var rma Return
	err := s.idempotency.Claim(ctx, idempotencyKey, "returns.process", func() error {
		var err error
		rma, err = s.transition(ctx, id, StatusProcessed, actor, "", func(ctx context.Context, tx TxRepository, rma *Return) error {
			for _, item := range rma.Items {
				if item.QuantityAccepted == 0 || !item.Restockable {
					continue
				}
				if _, err := s.ledger.ApplyMovement(ctx, tx.Stock(), inventory.Movement{
					WarehouseID: rma.WarehouseID,
					ProductID:   item.ProductID,
					Delta:       item.QuantityAccepted,
					Type:        inventory.MovementInward,
					Reference:   inventory.ReturnRef(rma.ID),
					Actor:       actor,
				}); err != nil {
					return err
				}
			}
			at := s.now()
			rma.RefundAmount = RefundAmount(rma.Items, rma.Deductions)
			rma.ProcessedAt = &at
			return nil
		})
		return err
	})
	if err != nil {
		return Return{}, err
	}
	s.committed(ctx, rma, "RMA_PROCESS", actor)
	return rma, nil
}

// Refund closes a processed return with a refund of RefundAmount.
func (s *Service) Refund(ctx context.Context, id, actor int64) (Return, error) {
	return s.transition(ctx, id, StatusRefunded, actor, "RMA_REFUND", nil)
}

// Replace closes a processed return with replacement goods instead of money.
func (s *Service) Replace(ctx context.Context, id, actor int64) (Return, error) {
	return s.transition(ctx, id, StatusReplaced, actor, "RMA_REPLACE", nil)
}

// Get returns a return with its items.
func (s *Service) Get(ctx context.Context, id int64) (Return, error) {
	return s.repo.GetReturn(ctx, id)
}

// List returns return headers, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Return, error) {
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	return s.repo.ListReturns(ctx, filter)
}

// transition emits action after commit unless action is empty.
func (s *Service) transition(ctx context.Context, id int64, to Status, actor int64, action string, apply func(context.Context, TxRepository, *Return) error) (Return, error) {
	var rma Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rma, err = tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Guard(rma.Status, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, &rma); err != nil {
				return err
			}
		}
		rma.Status = to
		rma.UpdatedAt = s.now()
		return tx.UpdateReturn(ctx, rma)
	})
	if err != nil {
		return Return{}, err
	}
	if action != "" {
		s.committed(ctx, rma, action, actor)
	}
	return rma, nil
}

func (r *Return) item(id int64) *Item {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i]
		}
	}
	return nil
}
