package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	CreditRepository
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
}

// OrderTx is the slice of order storage other workflows update inside their own
// transactions.
type OrderTx interface {
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	UpdateItemReserved(ctx context.Context, itemID, reserved int64) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	OrderTx
	Stock() inventory.StockTx
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	InsertOrder(ctx context.Context, order *Order) error
	SaveOrder(ctx context.Context, order Order) error
	InvoiceExists(ctx context.Context, orderID int64) (bool, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoicePayment(ctx context.Context, inv Invoice) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) error
}

// releaseHoldTransitions narrows OrderTransitions to the hold release path.
var releaseHoldTransitions = shared.Transitions[OrderStatus]{
	OrderConfirmed: {OrderOnHold},
}

// Service runs the sales order workflow.
type Service struct {
	repo         RepositoryPort
	reservations *inventory.Reservations
	tax          *TaxCalculator
	credit       CreditChecker
	hooks        shared.Hooks
	now          func() time.Time
}

// NewService builds Service. A nil credit checker skips credit checks.
func NewService(repo RepositoryPort, reservations *inventory.Reservations, tax *TaxCalculator, credit CreditChecker, hooks shared.Hooks) *Service {
	if tax == nil {
		tax = NewTaxCalculator()
	}
	return &Service{
		repo:         repo,
		reservations: reservations,
		tax:          tax,
		credit:       credit,
		hooks:        hooks,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create prices, credit checks, numbers and stores a PENDING order, reserving
// every line in the order's warehouse. Any failing line rolls back the order.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (Order, error) {
	return s.create(ctx, input, false)
}

// SaveDraft stores a priced DRAFT order without credit check or reservation.
func (s *Service) SaveDraft(ctx context.Context, input CreateOrderInput) (Order, error) {
	return s.create(ctx, input, true)
}

func (s *Service) create(ctx context.Context, input CreateOrderInput, draft bool) (Order, error) {
	if err := input.validate(); err != nil {
		return Order{}, err
	}
	now := s.now()
	order := Order{
		CustomerID:    input.CustomerID,
		WarehouseID:   input.WarehouseID,
		Status:        OrderPending,
		PaymentStatus: PaymentUnpaid,
		Notes:         input.Notes,
		CreatedBy:     input.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if draft {
		order.Status = OrderDraft
	}
	overrides := make([]*decimal.Decimal, len(input.Items))
	for i, item := range input.Items {
		order.Items = append(order.Items, OrderItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
		})
		overrides[i] = item.TaxRate
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.price(ctx, tx, &order, overrides); err != nil {
			return err
		}
		if !draft {
			if err := s.checkCredit(ctx, order); err != nil {
				return err
			}
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixSalesOrder, now.Year())
		if err != nil {
			return err
		}
		order.Number = shared.FormatDocumentNumber(shared.PrefixSalesOrder, now.Year(), seq)
		if !draft {
			if err := s.reserveAll(ctx, tx, &order); err != nil {
				return err
			}
		}
		return tx.InsertOrder(ctx, &order)
	})
	if err != nil {
		return Order{}, err
	}
	action := "SO_CREATE"
	if draft {
		action = "SO_SAVE_DRAFT"
	}
	s.committed(ctx, order, action, input.Actor)
	return order, nil
}

// Submit moves a DRAFT to PENDING, re-pricing it and reserving its lines.
func (s *Service) Submit(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderPending, actor, "SO_SUBMIT", func(ctx context.Context, tx TxRepository, order *Order) error {
		overrides := make([]*decimal.Decimal, len(order.Items))
		for i := range order.Items {
			rate := order.Items[i].TaxRate
			overrides[i] = &rate
		}
		if err := s.price(ctx, tx, order, overrides); err != nil {
			return err
		}
		if err := s.checkCredit(ctx, *order); err != nil {
			return err
		}
		if err := s.reserveAll(ctx, tx, order); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, *order)
	})
}

// Confirm moves a PENDING order to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderConfirmed, actor, "SO_CONFIRM", nil)
}

// Hold parks a submitted order. Reservations stay in place. A draft holds
// nothing and cannot be parked.
func (s *Service) Hold(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderOnHold, actor, "SO_HOLD", nil)
}

// ReleaseHold returns an ON_HOLD order to CONFIRMED.
func (s *Service) ReleaseHold(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderConfirmed, actor, "SO_RELEASE_HOLD", func(_ context.Context, _ TxRepository, order *Order) error {
		return releaseHoldTransitions.Guard(order.Status, OrderConfirmed)
	})
}

// StartProcessing moves a CONFIRMED order to PROCESSING.
func (s *Service) StartProcessing(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderProcessing, actor, "SO_PROCESS", nil)
}

// MarkPacked moves a PROCESSING order to PACKED.
func (s *Service) MarkPacked(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderPacked, actor, "SO_PACK", nil)
}

// Cancel releases every outstanding line reservation and cancels the order. A
// second cancel fails with shared.ErrInvalidStatus before touching stock.
func (s *Service) Cancel(ctx context.Context, id, actor int64) (Order, error) {
	return s.transition(ctx, id, OrderCancelled, actor, "SO_CANCEL", func(ctx context.Context, tx TxRepository, order *Order) error {
		for i := range order.Items {
			item := &order.Items[i]
			if item.ReservedQuantity == 0 {
				continue
			}
			if err := s.reservations.Release(ctx, tx.Stock(), order.WarehouseID, item.ProductID, item.ReservedQuantity); err != nil {
				return err
			}
			item.ReservedQuantity = 0
			if err := tx.UpdateItemReserved(ctx, item.ID, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// GenerateInvoice bills a CONFIRMED or PROCESSING order once, advancing it to
// PROCESSING.
func (s *Service) GenerateInvoice(ctx context.Context, orderID, actor int64) (Invoice, error) {
	var (
		inv      Invoice
		order    Order
		advanced bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		exists, err := tx.InvoiceExists(ctx, orderID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: order %s", shared.ErrInvoiceExists, order.Number)
		}
		if order.Status != OrderProcessing {
			if err := OrderTransitions.Guard(order.Status, OrderProcessing); err != nil {
				return err
			}
			advanced = true
		}

		now := s.now()
		seq, err := tx.NextSequence(ctx, shared.PrefixInvoice, now.Year())
		if err != nil {
			return err
		}
		inv = Invoice{
			Number:     shared.FormatDocumentNumber(shared.PrefixInvoice, now.Year(), seq),
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Subtotal:   order.Subtotal,
			TaxAmount:  order.TaxAmount,
			Total:      order.Total,
			AmountPaid: decimal.Zero,
			Status:     InvoiceIssued,
			IssuedAt:   now,
			DueAt:      now.AddDate(0, 0, order.PaymentTerms.Days()),
		}
		for _, item := range order.Items {
			inv.Items = append(inv.Items, InvoiceItem{
				OrderItemID: item.ID,
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				TaxAmount:   item.TaxAmount,
				Total:       item.Total,
			})
		}
		if err := tx.InsertInvoice(ctx, &inv); err != nil {
			return err
		}
		if advanced {
			order.Status = OrderProcessing
			return tx.UpdateOrderStatus(ctx, order.ID, OrderProcessing)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "invoice",
		Action:   "INVOICE_ISSUE",
		EntityID: inv.ID,
		Number:   inv.Number,
		Status:   string(inv.Status),
		ActorID:  actor,
		Meta:     map[string]any{"order_id": order.ID, "total": inv.Total.StringFixed(2), "due_at": inv.DueAt},
	})
	if advanced {
		s.committed(ctx, order, "SO_PROCESS", actor)
	}
	return inv, nil
}

// RecordPayment applies a customer payment to an invoice and rolls the
// settlement state up to the order.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, amount decimal.Decimal, actor int64) (Invoice, error) {
	if !amount.IsPositive() {
		return Invoice{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(inv.Outstanding()) {
			return fmt.Errorf("%w: payment %s exceeds outstanding %s", shared.ErrValidation,
				amount.StringFixed(2), inv.Outstanding().StringFixed(2))
		}
		inv.AmountPaid = inv.AmountPaid.Add(amount)
		payment := PaymentPartiallyPaid
		inv.Status = InvoicePartiallyPaid
		if !inv.Outstanding().IsPositive() {
			payment = PaymentPaid
			inv.Status = InvoicePaid
		}
		if err := tx.UpdateInvoicePayment(ctx, inv); err != nil {
			return err
		}
		return tx.UpdatePaymentStatus(ctx, inv.OrderID, payment)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "invoice",
		Action:   "PAYMENT_RECORD",
		EntityID: inv.ID,
		Number:   inv.Number,
		Status:   string(inv.Status),
		ActorID:  actor,
		Meta:     map[string]any{"amount": amount.StringFixed(2), "amount_paid": inv.AmountPaid.StringFixed(2)},
	})
	return inv, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List lists order headers, newest first.
func (s *Service) List(ctx context.Context, filter OrderFilter) ([]Order, error) {
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	return s.repo.ListOrders(ctx, filter)
}

// GetInvoice loads an invoice with its items.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// transition locks the order, guards the move to target, runs apply and stores
// the new status.
func (s *Service) transition(ctx context.Context, id int64, to OrderStatus, actor int64, action string, apply func(context.Context, TxRepository, *Order) error) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = loadOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := OrderTransitions.Guard(order.Status, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, &order); err != nil {
				return err
			}
		}
		order.Status = to
		order.UpdatedAt = s.now()
		return tx.UpdateOrderStatus(ctx, order.ID, to)
	})
	if err != nil {
		return Order{}, err
	}
	s.committed(ctx, order, action, actor)
	return order, nil
}

func (s *Service) price(ctx context.Context, tx TxRepository, order *Order, overrides []*decimal.Decimal) error {
	customer, err := tx.GetCustomer(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	warehouse, err := tx.GetWarehouse(ctx, order.WarehouseID)
	if err != nil {
		return err
	}
	order.PaymentTerms = customer.PaymentTerms

	lines := make([]TaxLine, len(order.Items))
	subtotal := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		gross := item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
		item.Subtotal = gross.Sub(percentOf(gross, item.DiscountPercent)).Round(2)
		lines[i] = TaxLine{Subtotal: item.Subtotal, Rate: overrides[i]}
		subtotal = subtotal.Add(item.Subtotal)
	}
	res := s.tax.CalculateOrderTax(TaxInput{Customer: customer, Warehouse: warehouse, Items: lines})
	for i := range order.Items {
		item := &order.Items[i]
		item.TaxRate = res.Lines[i].Rate
		item.TaxAmount = res.Lines[i].Amount
		item.Total = item.Subtotal.Add(item.TaxAmount)
	}
	order.Subtotal = subtotal
	order.TaxAmount = res.TaxAmount
	order.Total = subtotal.Add(res.TaxAmount)
	order.TaxDetails = res.Details
	return nil
}

func (s *Service) checkCredit(ctx context.Context, order Order) error {
	if s.credit == nil || !order.PaymentTerms.IsCredit() {
		return nil
	}
	decision, err := s.credit.CheckCreditLimit(ctx, order.CustomerID, order.Total)
	if err != nil {
		return err
	}
	if !decision.Approved {
		return fmt.Errorf("%w: %s", shared.ErrCreditLimitExceeded, decision.Message)
	}
	return nil
}

func (s *Service) reserveAll(ctx context.Context, tx TxRepository, order *Order) error {
	for i := range order.Items {
		item := &order.Items[i]
		if err := s.reservations.Reserve(ctx, tx.Stock(), order.WarehouseID, item.ProductID, item.Quantity); err != nil {
			return err
		}
		item.ReservedQuantity = item.Quantity
	}
	return nil
}

func (s *Service) committed(ctx context.Context, order Order, action string, actor int64) {
	s.hooks.Committed(ctx, shared.WorkflowEvent{
		Workflow: "sales_order",
		Action:   action,
		EntityID: order.ID,
		Number:   order.Number,
		Status:   string(order.Status),
		ActorID:  actor,
		Meta:     map[string]any{"customer_id": order.CustomerID, "total": order.Total.StringFixed(2)},
	})
}

func loadOrderForUpdate(ctx context.Context, tx OrderTx, id int64) (Order, error) {
	order, err := tx.GetOrderForUpdate(ctx, id)
	if err != nil {
		return Order{}, err
	}
	order.Items, err = tx.ListOrderItems(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// CascadeStatus moves an order to status from another workflow's transaction,
// guarded by OrderTransitions. An order already in status is left unchanged so
// several dispatches can settle the same order.
func CascadeStatus(ctx context.Context, tx OrderTx, orderID int64, status OrderStatus) (Order, bool, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return Order{}, false, err
	}
	if order.Status == status {
		return order, false, nil
	}
	if err := OrderTransitions.Guard(order.Status, status); err != nil {
		return Order{}, false, err
	}
	if err := tx.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return Order{}, false, err
	}
	order.Status = status
	return order, true, nil
}
