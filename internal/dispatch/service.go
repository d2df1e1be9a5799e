package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDispatch(ctx context.Context, id int64) (Dispatch, error)
	ListDispatches(ctx context.Context, filter Filter) ([]Dispatch, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Orders() sales.OrderTx
	Stock() inventory.StockTx
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	// OpenQuantities sums QuantityOrdered per sales order item over the order's
	// dispatches that have not shipped yet.
	OpenQuantities(ctx context.Context, salesOrderID int64) (map[int64]int64, error)
	// UnsettledDispatches counts the order's dispatches, other than exceptID,
	// that are neither delivered, failed nor cancelled.
	UnsettledDispatches(ctx context.Context, salesOrderID, exceptID int64) (int, error)
	InsertDispatch(ctx context.Context, d *Dispatch) error
	GetDispatchForUpdate(ctx context.Context, id int64) (Dispatch, error)
	UpdateDispatch(ctx context.Context, d Dispatch) error
	UpdateDispatchItem(ctx context.Context, item Item) error
	InsertTrackingUpdate(ctx context.Context, u *TrackingUpdate) error
}

// Service orchestrates picking, packing, shipping and delivery.
type Service struct {
	repo         RepositoryPort
	reservations *inventory.Reservations
	idempotency  *shared.IdempotencyStore
	policy       Policy
	hooks        shared.Hooks
	now          func() time.Time
}

// NewService constructs the dispatch service. idem may be nil.
func NewService(repo RepositoryPort, reservations *inventory.Reservations, idem *shared.IdempotencyStore, policy Policy, hooks shared.Hooks) *Service {
	return &Service{
		repo:         repo,
		reservations: reservations,
		idempotency:  idem,
		policy:       policy,
		hooks:        hooks,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a PENDING dispatch for a CONFIRMED or PROCESSING sales order.
// Without explicit lines every order line still holding a reservation is included.
func (s *Service) Create(ctx context.Context, input CreateInput) (Dispatch, error) {
	if err := shared.Validate(input); err != nil {
		return Dispatch{}, err
	}
	now := s.now()
	d := Dispatch{
		SalesOrderID: input.SalesOrderID,
		Status:       StatusPending,
		Carrier:      input.Carrier,
		CreatedBy:    input.Actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.Orders().GetOrderForUpdate(ctx, input.SalesOrderID)
		if err != nil {
			return err
		}
		if order.Status != sales.OrderConfirmed && order.Status != sales.OrderProcessing {
			return fmt.Errorf("%w: sales order %s is %s", shared.ErrInvalidStatus, order.Number, order.Status)
		}
		orderItems, err := tx.Orders().ListOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		open, err := tx.OpenQuantities(ctx, order.ID)
		if err != nil {
			return err
		}
		d.WarehouseID = order.WarehouseID
		d.Items, err = dispatchItems(orderItems, open, input.Items)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixDispatch, now.Year())
		if err != nil {
			return err
		}
		d.Number = shared.FormatDocumentNumber(shared.PrefixDispatch, now.Year(), seq)
		return tx.InsertDispatch(ctx, &d)
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.committed(ctx, d, "DSP_CREATE", input.Actor)
	return d, nil
}

// dispatchItems snapshots the quantity still reserved and not yet allocated to
// another open dispatch for every selected order line.
func dispatchItems(orderItems []sales.OrderItem, open map[int64]int64, lines []LineInput) ([]Item, error) {
	remaining := make(map[int64]int64, len(orderItems))
	byID := make(map[int64]sales.OrderItem, len(orderItems))
	for _, oi := range orderItems {
		byID[oi.ID] = oi
		remaining[oi.ID] = oi.ReservedQuantity - open[oi.ID]
	}
	var items []Item
	if len(lines) == 0 {
		for _, oi := range orderItems {
			if qty := remaining[oi.ID]; qty > 0 {
				items = append(items, Item{SalesOrderItemID: oi.ID, ProductID: oi.ProductID, QuantityOrdered: qty})
			}
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: nothing left to dispatch", shared.ErrValidation)
		}
		return items, nil
	}
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
		qty := line.Quantity
		if qty == 0 {
			qty = remaining[oi.ID]
		}
		if qty <= 0 {
			return nil, fmt.Errorf("%w: sales order item %d has nothing left to dispatch", shared.ErrValidation, oi.ID)
		}
		if qty > remaining[oi.ID] {
			return nil, fmt.Errorf("%w: sales order item %d has %d left, requested %d", shared.ErrExcessQuantity, oi.ID, remaining[oi.ID], qty)
		}
		items = append(items, Item{SalesOrderItemID: oi.ID, ProductID: oi.ProductID, QuantityOrdered: qty})
	}
	return items, nil
}

// StartPicking moves a PENDING dispatch to PICKING. A CONFIRMED order moves to PROCESSING.
func (s *Service) StartPicking(ctx context.Context, id, actor int64) (Dispatch, error) {
	var cascaded *sales.Order
	d, err := s.transition(ctx, id, StatusPicking, actor, "DSP_PICK", func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		order, err := tx.Orders().GetOrderForUpdate(ctx, d.SalesOrderID)
		if err != nil {
			return err
		}
		if err := shippable(order); err != nil {
			return err
		}
		if order.Status != sales.OrderConfirmed {
			return nil
		}
		order, changed, err := sales.CascadeStatus(ctx, tx.Orders(), d.SalesOrderID, sales.OrderProcessing)
		if changed {
			cascaded = &order
		}
		return err
	})
	if err == nil && cascaded != nil {
		s.orderCommitted(ctx, *cascaded, "SO_PROCESS", actor)
	}
	return d, err
}

// RecordPicks adds picked units. Picked never exceeds ordered.
func (s *Service) RecordPicks(ctx context.Context, id int64, lines []QuantityInput, actor int64) (Dispatch, error) {
	return s.record(ctx, id, lines, actor, "DSP_PICK_RECORD", func(item *Item, qty int64) error {
		if item.QuantityPicked+qty > item.QuantityOrdered {
			return fmt.Errorf("%w: item %d would pick %d of %d", shared.ErrExcessQuantity, item.ID, item.QuantityPicked+qty, item.QuantityOrdered)
		}
		item.QuantityPicked += qty
		return nil
	})
}

// RecordPacks adds packed units. Packed never exceeds picked.
func (s *Service) RecordPacks(ctx context.Context, id int64, lines []QuantityInput, actor int64) (Dispatch, error) {
	return s.record(ctx, id, lines, actor, "DSP_PACK_RECORD", func(item *Item, qty int64) error {
		if item.QuantityPacked+qty > item.QuantityPicked {
			return fmt.Errorf("%w: item %d would pack %d of %d picked", shared.ErrExcessQuantity, item.ID, item.QuantityPacked+qty, item.QuantityPicked)
		}
		item.QuantityPacked += qty
		return nil
	})
}

func (s *Service) record(ctx context.Context, id int64, lines []QuantityInput, actor int64, action string, apply func(*Item, int64) error) (Dispatch, error) {
	if len(lines) == 0 {
		return Dispatch{}, fmt.Errorf("%w: no lines", shared.ErrValidation)
	}
	for i, line := range lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			return Dispatch{}, fmt.Errorf("%w: lines[%d] needs an item and a positive quantity", shared.ErrValidation, i)
		}
	}
	var d Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.GetDispatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Status != StatusPicking {
			return fmt.Errorf("%w: dispatch %s is %s", shared.ErrInvalidStatus, d.Number, d.Status)
		}
		for _, line := range lines {
			item := d.item(line.ItemID)
			if item == nil {
				return fmt.Errorf("%w: item %d is not on dispatch %s", shared.ErrValidation, line.ItemID, d.Number)
			}
			if err := apply(item, line.Quantity); err != nil {
				return err
			}
			if err := tx.UpdateDispatchItem(ctx, *item); err != nil {
				return err
			}
		}
		d.UpdatedAt = s.now()
		return tx.UpdateDispatch(ctx, d)
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.committed(ctx, d, action, actor)
	return d, nil
}

// CompletePacking closes picking. An empty pack is always rejected; a short one
// only when the policy forbids partial fulfilment.
func (s *Service) CompletePacking(ctx context.Context, id, actor int64) (Dispatch, error) {
	return s.transition(ctx, id, StatusPacked, actor, "DSP_PACK", func(_ context.Context, _ TxRepository, d *Dispatch) error {
		var packed int64
		for _, item := range d.Items {
			packed += item.QuantityPacked
			if !s.policy.AllowPartialFulfillment && item.QuantityPacked < item.QuantityOrdered {
				return fmt.Errorf("%w: item %d packed %d of %d", shared.ErrIncompleteFulfillment, item.ID, item.QuantityPacked, item.QuantityOrdered)
			}
		}
		if packed == 0 {
			return fmt.Errorf("%w: dispatch %s has nothing packed", shared.ErrIncompleteFulfillment, d.Number)
		}
		return nil
	})
}

// MarkReadyToShip assigns the carrier. An empty tracking number gets a generated one.
func (s *Service) MarkReadyToShip(ctx context.Context, id int64, input ReadyInput, actor int64) (Dispatch, error) {
	if err := shared.Validate(input); err != nil {
		return Dispatch{}, err
	}
	return s.transition(ctx, id, StatusReadyToShip, actor, "DSP_READY", func(_ context.Context, _ TxRepository, d *Dispatch) error {
		if input.Carrier != "" {
			d.Carrier = input.Carrier
		}
		d.TrackingNumber = input.TrackingNumber
		if d.TrackingNumber == "" {
			d.TrackingNumber = newTrackingNumber()
		}
		return nil
	})
}

func newTrackingNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK" + strings.ToUpper(raw[:12])
}

// Ship consumes the packed units from the reservation and writes one OUTWARD
// ledger row per line. The sales order moves to SHIPPED once none of its lines
// holds a reservation; a short shipment leaves the remainder reserved as a
// backorder for another dispatch. Retries with the same idempotency key are
// rejected.
func (s *Service) Ship(ctx context.Context, id, actor int64, idempotencyKey string) (Dispatch, error) {
	var (
		d        Dispatch
		order    sales.Order
		cascaded bool
	)
	err := s.idempotency.Claim(ctx, idempotencyKey, "dispatch.ship", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			d, err = tx.GetDispatchForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := Transitions.Guard(d.Status, StatusShipped); err != nil {
				return err
			}
			current, err := tx.Orders().GetOrderForUpdate(ctx, d.SalesOrderID)
			if err != nil {
				return err
			}
			if err := shippable(current); err != nil {
				return err
			}
			orderItems, err := tx.Orders().ListOrderItems(ctx, d.SalesOrderID)
			if err != nil {
				return err
			}
			reserved := make(map[int64]int64, len(orderItems))
			for _, oi := range orderItems {
				reserved[oi.ID] = oi.ReservedQuantity
			}
			for i := range d.Items {
				item := &d.Items[i]
				if item.QuantityPacked == 0 {
					continue
				}
				if held := reserved[item.SalesOrderItemID]; item.QuantityPacked > held {
					return fmt.Errorf("%w: sales order item %d holds %d, dispatch packs %d",
						shared.ErrInsufficientInventory, item.SalesOrderItemID, held, item.QuantityPacked)
				}
				if _, err := s.reservations.Consume(ctx, tx.Stock(), inventory.ConsumeInput{
					WarehouseID: d.WarehouseID,
					ProductID:   item.ProductID,
					Qty:         item.QuantityPacked,
					Reference:   inventory.DispatchRef(d.ID),
					Actor:       actor,
				}); err != nil {
					return err
				}
				item.QuantityShipped = item.QuantityPacked
				if err := tx.UpdateDispatchItem(ctx, *item); err != nil {
					return err
				}
				left := reserved[item.SalesOrderItemID] - item.QuantityShipped
				reserved[item.SalesOrderItemID] = left
				if err := tx.Orders().UpdateItemReserved(ctx, item.SalesOrderItemID, left); err != nil {
					return err
				}
			}
			if backordered(reserved) {
				order = current
			} else {
				order, cascaded, err = sales.CascadeStatus(ctx, tx.Orders(), d.SalesOrderID, sales.OrderShipped)
				if err != nil {
					return err
				}
			}
			now := s.now()
			d.Status = StatusShipped
			d.ShippedAt = &now
			d.UpdatedAt = now
			if err := tx.UpdateDispatch(ctx, d); err != nil {
				return err
			}
			return s.track(ctx, tx, &d, "", "shipped via "+defaultString(d.Carrier, "carrier"), actor)
		})
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.committed(ctx, d, "DSP_SHIP", actor)
	if cascaded {
		s.orderCommitted(ctx, order, "SO_SHIP", actor)
	}
	return d, nil
}

// MarkInTransit records the carrier picking the parcel up.
func (s *Service) MarkInTransit(ctx context.Context, id int64, input TrackingInput, actor int64) (Dispatch, error) {
	return s.transition(ctx, id, StatusInTransit, actor, "DSP_TRANSIT", func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		d.Status = StatusInTransit
		return s.track(ctx, tx, d, input.Location, input.Note, actor)
	})
}

// MarkOutForDelivery records the last leg.
func (s *Service) MarkOutForDelivery(ctx context.Context, id int64, input TrackingInput, actor int64) (Dispatch, error) {
	return s.transition(ctx, id, StatusOutForDelivery, actor, "DSP_OUT_FOR_DELIVERY", func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		d.Status = StatusOutForDelivery
		return s.track(ctx, tx, d, input.Location, input.Note, actor)
	})
}

// MarkDelivered settles an in-flight dispatch. The sales order moves to DELIVERED
// once it is SHIPPED and no other dispatch of it is still on its way.
func (s *Service) MarkDelivered(ctx context.Context, id int64, input TrackingInput, actor int64) (Dispatch, error) {
	var (
		order    sales.Order
		cascaded bool
	)
	d, err := s.transition(ctx, id, StatusDelivered, actor, "DSP_DELIVER", func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		current, err := tx.Orders().GetOrderForUpdate(ctx, d.SalesOrderID)
		if err != nil {
			return err
		}
		unsettled, err := tx.UnsettledDispatches(ctx, d.SalesOrderID, d.ID)
		if err != nil {
			return err
		}
		if current.Status == sales.OrderShipped && unsettled == 0 {
			order, cascaded, err = sales.CascadeStatus(ctx, tx.Orders(), d.SalesOrderID, sales.OrderDelivered)
			if err != nil {
				return err
			}
		}
		at := s.now()
		d.DeliveredAt = &at
		d.Status = StatusDelivered
		return s.track(ctx, tx, d, input.Location, input.Note, actor)
	})
	if err == nil && cascaded {
		s.orderCommitted(ctx, order, "SO_DELIVER", actor)
	}
	return d, err
}

// MarkFailed records a failed delivery. Stock stays consumed; the goods come back
// through a return.
func (s *Service) MarkFailed(ctx context.Context, id int64, input TrackingInput, actor int64) (Dispatch, error) {
	return s.transition(ctx, id, StatusFailed, actor, "DSP_FAIL", func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		d.Status = StatusFailed
		return s.track(ctx, tx, d, input.Location, input.Note, actor)
	})
}

// Cancel withdraws a dispatch that has not shipped. Nothing was consumed, so
// the order lines keep their reservations and can be dispatched again.
func (s *Service) Cancel(ctx context.Context, id int64, input TrackingInput, actor int64) (Dispatch, error) {
	return s.transition(ctx, id, StatusCancelled, actor, "DSP_CANCEL", func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		d.Status = StatusCancelled
		return s.track(ctx, tx, d, input.Location, input.Note, actor)
	})
}

// AddTrackingUpdate appends a carrier event without changing the status.
func (s *Service) AddTrackingUpdate(ctx context.Context, id int64, input TrackingInput, actor int64) (TrackingUpdate, error) {
	if err := shared.Validate(input); err != nil {
		return TrackingUpdate{}, err
	}
	var update TrackingUpdate
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDispatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !d.Status.InFlight() {
			return fmt.Errorf("%w: dispatch %s is %s", shared.ErrInvalidStatus, d.Number, d.Status)
		}
		if err := s.track(ctx, tx, &d, input.Location, input.Note, actor); err != nil {
			return err
		}
		update = d.Tracking[len(d.Tracking)-1]
		return nil
	})
	return update, err
}

// Get returns a dispatch with its lines and tracking history.
func (s *Service) Get(ctx context.Context, id int64) (Dispatch, error) {
	return s.repo.GetDispatch(ctx, id)
}

// List returns dispatch headers, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Dispatch, error) {
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	return s.repo.ListDispatches(ctx, filter)
}

func (s *Service) track(ctx context.Context, tx TxRepository, d *Dispatch, location, note string, actor int64) error {
	u := TrackingUpdate{
		DispatchID: d.ID,
		Status:     d.Status,
		Location:   location,
		Note:       note,
		CreatedBy:  actor,
		CreatedAt:  s.now(),
	}
	if err := tx.InsertTrackingUpdate(ctx, &u); err != nil {
		return err
	}
	d.Tracking = append(d.Tracking, u)
	return nil
}

func (s *Service) transition(ctx context.Context, id int64, to Status, actor int64, action string, apply func(context.Context, TxRepository, *Dispatch) error) (Dispatch, error) {
	var d Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.GetDispatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Guard(d.Status, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, &d); err != nil {
				return err
			}
		}
		d.Status = to
		d.UpdatedAt = s.now()
		return tx.UpdateDispatch(ctx, d)
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.committed(ctx, d, action, actor)
	return d, nil
}

// shippable rejects orders that can no longer leave the warehouse, such as a
// cancelled or held order.
func shippable(order sales.Order) error {
	if sales.OrderTransitions.Allows(order.Status, sales.OrderShipped) {
		return nil
	}
	return fmt.Errorf("%w: sales order %s is %s", shared.ErrInvalidStatus, order.Number, order.Status)
}

func backordered(reserved map[int64]int64) bool {
	for _, qty := range reserved {
		if qty > 0 {
			return true
		}
	}
	return false
}

func (d *Dispatch) item(id int64) *Item {
	for i := range d.Items {
		if d.Items[i].ID == id {
			return &d.Items[i]
		}
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
