package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Document number prefixes.
const (
	PrefixSalesOrder    = "SO"
	PrefixInvoice       = "INV"
	PrefixPurchaseOrder = "PO"
	PrefixGRN           = "GRN"
	PrefixDispatch      = "DSP"
	PrefixReturn        = "RMA"
	PrefixTransfer      = "TRF"
	PrefixAdjustment    = "ADJ"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FormatDocumentNumber renders PREFIX + year + six digit sequence, e.g. SO2025000123.
func FormatDocumentNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%04d%06d", prefix, year, seq)
}

// NextSequence atomically increments the (prefix, year) counter and returns the new value.
// Run it on the transaction that inserts the document so a rollback does not leak numbers
// into committed rows.
func NextSequence(ctx context.Context, q DBTX, prefix string, year int) (int64, error) {
	var value int64
	err := q.QueryRow(ctx, `INSERT INTO document_sequences (prefix, year, value) VALUES ($1, $2, 1)
ON CONFLICT (prefix, year) DO UPDATE SET value = document_sequences.value + 1
RETURNING value`, prefix, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("shared: next sequence %s/%d: %w", prefix, year, err)
	}
	return value, nil
}
