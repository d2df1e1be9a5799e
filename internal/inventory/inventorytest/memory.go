// Package inventorytest provides an in-memory stock store for workflow tests.
package inventorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

type pair struct{ warehouseID, productID int64 }

// Store implements inventory.StockTx in memory. Atomically gives callers
// all-or-nothing semantics comparable to a database transaction.
type Store struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	records map[pair]inventory.Record
	ledger  []inventory.Transaction
	nextID  int64
}

var _ inventory.StockTx = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[pair]inventory.Record)}
}

// Seed sets the counters of a pair, bypassing the ledger.
func (s *Store) Seed(warehouseID, productID, available, reserved int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[pair{warehouseID, productID}]
	rec.WarehouseID, rec.ProductID = warehouseID, productID
	rec.Available, rec.Reserved = available, reserved
	s.records[pair{warehouseID, productID}] = rec
}

// SetReorderPoint sets the reorder point of an existing or new pair.
func (s *Store) SetReorderPoint(warehouseID, productID, point int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[pair{warehouseID, productID}]
	rec.WarehouseID, rec.ProductID = warehouseID, productID
	rec.ReorderPoint = point
	s.records[pair{warehouseID, productID}] = rec
}

// Record returns the counters of a pair and whether it exists.
func (s *Store) Record(warehouseID, productID int64) (inventory.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[pair{warehouseID, productID}]
	return rec, ok
}

// Records lists every record ordered by warehouse then product.
func (s *Store) Records() []inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID != out[j].WarehouseID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// Transactions returns ledger rows in insertion order, optionally narrowed to a reference.
func (s *Store) Transactions(ref inventory.Reference) []inventory.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Transaction
	for _, t := range s.ledger {
		if ref == nil || (t.Reference != nil && t.Reference.Kind() == ref.Kind() && t.Reference.ID() == ref.ID()) {
			out = append(out, t)
		}
	}
	return out
}

// LedgerSum totals the signed quantities of a pair.
func (s *Store) LedgerSum(warehouseID, productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.ledger {
		if t.WarehouseID == warehouseID && t.ProductID == productID {
			sum += t.Quantity
		}
	}
	return sum
}

// Snapshot captures the store state.
type Snapshot struct {
	records map[pair]inventory.Record
	ledger  []inventory.Transaction
	nextID  int64
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{records: make(map[pair]inventory.Record, len(s.records)), nextID: s.nextID}
	for k, v := range s.records {
		snap.records[k] = v
	}
	snap.ledger = append([]inventory.Transaction(nil), s.ledger...)
	return snap
}

// Restore rolls the store back to snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snap.records
	s.ledger = snap.ledger
	s.nextID = snap.nextID
}

// Atomically serializes fn against other Atomically calls and restores the
// store when fn fails.
func (s *Store) Atomically(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.Snapshot()
	if err := fn(); err != nil {
		s.Restore(snap)
		return err
	}
	return nil
}

func (s *Store) EnsureRecord(_ context.Context, warehouseID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{warehouseID, productID}
	if _, ok := s.records[k]; !ok {
		s.records[k] = inventory.Record{WarehouseID: warehouseID, ProductID: productID, UpdatedAt: time.Now().UTC()}
	}
	return nil
}

func (s *Store) LockRecord(_ context.Context, warehouseID, productID int64) (inventory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[pair{warehouseID, productID}]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

func (s *Store) SaveRecord(_ context.Context, rec inventory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{rec.WarehouseID, rec.ProductID}
	if _, ok := s.records[k]; !ok {
		return inventory.ErrRecordNotFound
	}
	s.records[k] = rec
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, t inventory.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.ledger = append(s.ledger, t)
	return t.ID, nil
}

// Sequence hands out per prefix and year document counters.
type Sequence struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewSequence returns a counter set starting at zero.
func NewSequence() *Sequence {
	return &Sequence{values: make(map[string]int64)}
}

// Next increments and returns the counter for prefix and year.
func (q *Sequence) Next(prefix string, year int) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := prefix + ":" + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	q.values[k]++
	return q.values[k]
}

// NextSequence matches the transactional repository method signature.
func (q *Sequence) NextSequence(_ context.Context, prefix string, year int) (int64, error) {
	return q.Next(prefix, year), nil
}
