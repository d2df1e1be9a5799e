package perf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/odyssey-erp/stockflow/internal/app"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

func BenchmarkReserveConsume(b *testing.B) {
	ctx := context.Background()
	store := inventorytest.NewStore()
	store.Seed(1, 1, int64(b.N)+1, 0)
	reservations := inventory.NewReservations(inventory.NewLedger(observability.NewMetrics()))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := reservations.Reserve(ctx, store, 1, 1, 1); err != nil {
			b.Fatal(err)
		}
		if _, err := reservations.Consume(ctx, store, inventory.ConsumeInput{
			WarehouseID: 1, ProductID: 1, Qty: 1, Reference: inventory.DispatchRef(int64(i + 1)),
		}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCommittedHooks(b *testing.B) {
	ctx := context.Background()
	hooks := shared.Hooks{Metrics: observability.NewMetrics()}
	evt := shared.WorkflowEvent{Workflow: "dispatch", Action: "DSP_SHIP", Status: "SHIPPED"}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		hooks.Committed(ctx, evt)
	}
}

func BenchmarkHealthz(b *testing.B) {
	router := app.NewRouter(app.RouterParams{Config: &app.Config{}, Metrics: observability.NewMetrics()})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			b.Fatalf("status %d", rr.Code)
		}
	}
}

// TestReservationLatencyTarget keeps the in-memory reserve path far below the
// budget the HTTP layer adds on top.
func TestReservationLatencyTarget(t *testing.T) {
	ctx := context.Background()
	store := inventorytest.NewStore()
	store.Seed(1, 1, 1000, 0)
	reservations := inventory.NewReservations(inventory.NewLedger(nil))

	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		start := time.Now()
		if err := reservations.Reserve(ctx, store, 1, 1, 1); err != nil {
			t.Fatal(err)
		}
		if err := reservations.Release(ctx, store, 1, 1, 1); err != nil {
			t.Fatal(err)
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 5*time.Millisecond {
		t.Fatalf("reserve/release p95=%s exceeds 5ms", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*0.95)]
}
