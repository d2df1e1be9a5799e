package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// OrderStatus tracks a sales order through fulfilment.
type OrderStatus string

const (
	OrderDraft      OrderStatus = "DRAFT"
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderPacked     OrderStatus = "PACKED"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderOnHold     OrderStatus = "ON_HOLD"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// OrderTransitions maps each target status to the statuses it may be entered from.
var OrderTransitions = shared.Transitions[OrderStatus]{
	OrderPending:    {OrderDraft},
	OrderConfirmed:  {OrderPending, OrderOnHold},
	OrderProcessing: {OrderConfirmed},
	OrderPacked:     {OrderProcessing},
	OrderShipped:    {OrderConfirmed, OrderProcessing, OrderPacked},
	OrderDelivered:  {OrderShipped},
	OrderOnHold:     {OrderPending, OrderConfirmed, OrderProcessing, OrderPacked},
	OrderCancelled:  {OrderDraft, OrderPending, OrderConfirmed, OrderProcessing, OrderPacked, OrderOnHold},
}

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderDraft, OrderPending, OrderConfirmed, OrderProcessing, OrderPacked,
		OrderShipped, OrderDelivered, OrderOnHold, OrderCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// PaymentStatus summarises invoice settlement on the order.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

// PaymentTerms controls credit checks and invoice due dates.
type PaymentTerms string

const (
	TermsImmediate PaymentTerms = "IMMEDIATE"
	TermsNet15     PaymentTerms = "NET_15"
	TermsNet30     PaymentTerms = "NET_30"
	TermsNet60     PaymentTerms = "NET_60"
)

// Days returns the number of days until an invoice under these terms is due.
func (t PaymentTerms) Days() int {
	switch t {
	case TermsNet15:
		return 15
	case TermsNet30:
		return 30
	case TermsNet60:
		return 60
	}
	return 0
}

// IsCredit reports whether the terms extend credit to the customer.
func (t PaymentTerms) IsCredit() bool {
	return t.Days() > 0
}

// Customer is the buying party. A zero CreditLimit means unlimited credit.
type Customer struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Country      string          `json:"country"`
	State        string          `json:"state"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
	PaymentTerms PaymentTerms    `json:"payment_terms"`
}

// Warehouse is the shipping origin used for tax jurisdiction.
type Warehouse struct {
	ID      int64  `json:"id"`
	Country string `json:"country"`
	State   string `json:"state"`
}

// Order is a sales order header with its lines.
type Order struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	CustomerID    int64           `json:"customer_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentTerms  PaymentTerms    `json:"payment_terms"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	TaxDetails    []TaxDetail     `json:"tax_details"`
	Notes         string          `json:"notes"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []OrderItem     `json:"items"`
}

// OrderItem is one product line. ReservedQuantity tracks stock still held for
// the line in the order's warehouse.
type OrderItem struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	ProductID        int64           `json:"product_id"`
	Quantity         int64           `json:"quantity"`
	ReservedQuantity int64           `json:"reserved_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	Total            decimal.Decimal `json:"total"`
}

// InvoiceStatus tracks settlement of an invoice.
type InvoiceStatus string

const (
	InvoiceIssued        InvoiceStatus = "ISSUED"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
)

// Invoice snapshots an order's amounts at billing time.
type Invoice struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     InvoiceStatus   `json:"status"`
	IssuedAt   time.Time       `json:"issued_at"`
	DueAt      time.Time       `json:"due_at"`
	Items      []InvoiceItem   `json:"items"`
}

// Outstanding is the unpaid part of the invoice.
func (i Invoice) Outstanding() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// InvoiceItem snapshots one order line.
type InvoiceItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	OrderItemID int64           `json:"order_item_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	CustomerID int64
	Status     OrderStatus
	Limit      int
}
