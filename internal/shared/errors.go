package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus occurs when a workflow transition is attempted from an illegal state.
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrInsufficientStock indicates a ledger or reservation precondition failed.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrExcessQuantity indicates a received or returned quantity above what is outstanding.
	ErrExcessQuantity = errors.New("quantity exceeds outstanding")
	// ErrCreditLimitExceeded rejects orders above the customer's available credit.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	// ErrInvoiceExists guards the one-invoice-per-order rule.
	ErrInvoiceExists = errors.New("invoice already exists")
	// ErrHasGRN blocks purchase order cancellation once goods were received against it.
	ErrHasGRN = errors.New("purchase order has goods receipts")
	// ErrSameWarehouse rejects transfers whose source equals destination.
	ErrSameWarehouse = errors.New("source and destination warehouse must differ")
	// ErrIncompleteFulfillment blocks packing completion when partial fulfillment is disabled.
	ErrIncompleteFulfillment = errors.New("fulfillment incomplete")
	// ErrDuplicate surfaces unique constraint violations.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrForeignKey surfaces foreign key violations.
	ErrForeignKey = errors.New("foreign key violation")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
)

// ErrInsufficientInventory is the reservation engine's name for ErrInsufficientStock.
var ErrInsufficientInventory = ErrInsufficientStock
