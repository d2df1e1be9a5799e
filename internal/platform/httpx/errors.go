// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

type errorKind struct {
	err    error
	status int
	title  string
	code   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found", "not_found"},
	{shared.ErrInvalidStatus, http.StatusConflict, "Invalid Status", "invalid_status"},
	{shared.ErrInsufficientStock, http.StatusConflict, "Insufficient Stock", "insufficient_stock"},
	{shared.ErrExcessQuantity, http.StatusUnprocessableEntity, "Excess Quantity", "excess_quantity"},
	{shared.ErrCreditLimitExceeded, http.StatusUnprocessableEntity, "Credit Limit Exceeded", "credit_limit_exceeded"},
	{shared.ErrInvoiceExists, http.StatusConflict, "Invoice Exists", "invoice_exists"},
	{shared.ErrHasGRN, http.StatusConflict, "Goods Receipts Exist", "has_grn"},
	{shared.ErrSameWarehouse, http.StatusUnprocessableEntity, "Same Warehouse", "same_warehouse"},
	{shared.ErrIncompleteFulfillment, http.StatusConflict, "Incomplete Fulfillment", "incomplete_fulfillment"},
	{shared.ErrIdempotencyConflict, http.StatusConflict, "Already Processed", "idempotency_conflict"},
	{shared.ErrDuplicate, http.StatusConflict, "Duplicate", "duplicate"},
	{shared.ErrForeignKey, http.StatusUnprocessableEntity, "Unknown Reference", "foreign_key"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed", "validation_failed"},
}

// StatusFor returns the HTTP status and machine-readable code for err.
func StatusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// RespondError maps domain errors to HTTP responses using RFC7807. Unclassified
// errors never leak their message.
func RespondError(w http.ResponseWriter, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			Problem(w, k.status, k.title, k.code, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "internal", "")
}
