package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/notify"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

type fakeSource struct {
	records map[int64][]inventory.Record
	failOn  int64
}

func (f *fakeSource) ListWarehouseIDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) ListLowStock(_ context.Context, warehouseID int64, limit int) ([]inventory.Record, error) {
	if warehouseID == f.failOn {
		return nil, errors.New("query failed")
	}
	recs := f.records[warehouseID]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []shared.WorkflowEvent
}

func (c *captureNotifier) Notify(_ context.Context, evt shared.WorkflowEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func lowRecord(wh, product, available, point int64) inventory.Record {
	return inventory.Record{WarehouseID: wh, ProductID: product, Available: available, ReorderPoint: point}
}

func TestLowStockScanNotifiesEveryWarehouse(t *testing.T) {
	source := &fakeSource{records: map[int64][]inventory.Record{
		2: {lowRecord(2, 11, 1, 5)},
		1: {lowRecord(1, 10, 0, 3), lowRecord(1, 12, 2, 2)},
		3: nil,
	}}
	notifier := &captureNotifier{}
	job := &LowStockScanJob{Source: source, Notifier: notifier, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	res, err := job.Scan(context.Background(), notify.LowStockScanPayload{})
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Warehouses: 3, Records: 3}, res)

	require.Len(t, notifier.events, 3)
	assert.Equal(t, inventory.LowStockWorkflow, notifier.events[0].Workflow)
	assert.Equal(t, int64(10), notifier.events[0].EntityID)
	assert.Equal(t, int64(12), notifier.events[1].EntityID)
	assert.Equal(t, int64(11), notifier.events[2].EntityID)
}

func TestLowStockScanSingleWarehouse(t *testing.T) {
	source := &fakeSource{records: map[int64][]inventory.Record{
		1: {lowRecord(1, 10, 0, 3)},
		2: {lowRecord(2, 11, 1, 5)},
	}}
	notifier := &captureNotifier{}
	job := &LowStockScanJob{Source: source, Notifier: notifier}

	res, err := job.Scan(context.Background(), notify.LowStockScanPayload{WarehouseID: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warehouses)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, int64(11), notifier.events[0].EntityID)
}

func TestLowStockScanFailsWhenAWarehouseFails(t *testing.T) {
	source := &fakeSource{failOn: 2, records: map[int64][]inventory.Record{
		1: {lowRecord(1, 10, 0, 3)},
		2: {lowRecord(2, 11, 1, 5)},
	}}
	notifier := &captureNotifier{}
	job := &LowStockScanJob{Source: source, Notifier: notifier}

	task, err := notify.NewLowStockScanTask(notify.LowStockScanPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	assert.Empty(t, notifier.events)
}

func TestNotificationJobLogsRenderedLine(t *testing.T) {
	var buf bytes.Buffer
	job := &NotificationJob{
		Renderer: notify.NewRenderer(language.English, "USD"),
		Logger:   slog.New(slog.NewJSONHandler(&buf, nil)),
	}
	task, err := notify.NewNotifyTask(notify.Payload{Workflow: "sales_order", Action: "SO_CONFIRM", Number: "SO-2025-00001", Status: "CONFIRMED"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Contains(t, buf.String(), "sales_order SO_CONFIRM SO-2025-00001 status=CONFIRMED")
}

func TestNotificationJobSkipsRetryOnBadPayload(t *testing.T) {
	job := &NotificationJob{Renderer: notify.NewRenderer(language.English, "USD")}
	err := job.Handle(context.Background(), asynq.NewTask(notify.TaskNotify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

type fakeEnqueuer struct{ tasks []*asynq.Task }

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: "stockflow", Type: task.Type()}, nil
}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHealthReportsQueueInfo(t *testing.T) {
	h := NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: "stockflow", Size: 3, Pending: 2, Active: 1}}, nil, "stockflow", nil)
	rr := httptest.NewRecorder()
	router(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: "stockflow", Size: 3, Pending: 2, Active: 1}, body)
}

func TestHealthUnavailableOnInspectorError(t *testing.T) {
	h := NewHandler(fakeInspector{err: errors.New("redis down")}, nil, "", nil)
	rr := httptest.NewRecorder()
	router(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestLowStockScanEndpointEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewHandler(nil, NewClient(enq, "stockflow"), "stockflow", nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/low-stock-scan", strings.NewReader(`{"warehouse_id":4}`))
	router(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, notify.TaskLowStockScan, enq.tasks[0].Type())
	assert.JSONEq(t, `{"warehouse_id":4}`, string(enq.tasks[0].Payload()))
}
