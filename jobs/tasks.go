package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/notify"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// scanParallelism bounds concurrent warehouse queries in a low-stock scan.
const scanParallelism = 4

// NotificationJob delivers queued workflow events. Email and SMS delivery are
// external; the worker logs the rendered line.
type NotificationJob struct {
	Renderer *notify.Renderer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes notify.TaskNotify tasks.
func (j *NotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Renderer == nil {
		return errors.New("notification: handler not configured")
	}
	tracker := j.Metrics.Track(notify.TaskNotify)
	payload, err := notify.DecodePayload(t)
	if err != nil {
		_ = tracker.End(err)
		return errors.Join(err, asynq.SkipRetry)
	}
	j.logger().InfoContext(ctx, "workflow notification",
		slog.String("workflow", payload.Workflow),
		slog.String("action", payload.Action),
		slog.Int64("entity_id", payload.EntityID),
		slog.String("text", j.Renderer.Render(payload)))
	j.Metrics.AddNotification(payload.Workflow)
	return tracker.End(nil)
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// StockSource lists low-stock records; *inventory.Repository satisfies it.
type StockSource interface {
	ListWarehouseIDs(ctx context.Context) ([]int64, error)
	ListLowStock(ctx context.Context, warehouseID int64, limit int) ([]inventory.Record, error)
}

// LowStockScanJob republishes reorder point breaches as notifications.
type LowStockScanJob struct {
	Source   StockSource
	Notifier shared.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// ScanResult summarises one scan.
type ScanResult struct {
	Warehouses int
	Records    int
}

// Handle processes notify.TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload notify.LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return errors.Join(err, asynq.SkipRetry)
		}
	}
	_, err := j.Scan(ctx, payload)
	return err
}

// Scan queries every in-scope warehouse concurrently and notifies each record
// at or below its reorder point.
func (j *LowStockScanJob) Scan(ctx context.Context, payload notify.LowStockScanPayload) (res ScanResult, err error) {
	tracker := j.Metrics.Track(notify.TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	warehouses := []int64{payload.WarehouseID}
	if payload.WarehouseID == 0 {
		warehouses, err = j.Source.ListWarehouseIDs(ctx)
		if err != nil {
			return res, err
		}
	}
	limit := shared.NormalizeLimit(payload.Limit)

	var (
		mu    sync.Mutex
		found []inventory.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for _, wh := range warehouses {
		g.Go(func() error {
			recs, err := j.Source.ListLowStock(gctx, wh, limit)
			if err != nil {
				return err
			}
			j.Metrics.SetLowStock(wh, len(recs))
			mu.Lock()
			found = append(found, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	sort.Slice(found, func(a, b int) bool {
		if found[a].WarehouseID != found[b].WarehouseID {
			return found[a].WarehouseID < found[b].WarehouseID
		}
		return found[a].ProductID < found[b].ProductID
	})

	for _, rec := range found {
		if j.Notifier == nil {
			break
		}
		if err := j.Notifier.Notify(ctx, inventory.LowStockEvent(rec, 0)); err != nil {
			j.logger().Warn("low stock notification failed",
				slog.Int64("warehouse_id", rec.WarehouseID),
				slog.Int64("product_id", rec.ProductID),
				slog.Any("error", err))
		}
	}
	res = ScanResult{Warehouses: len(warehouses), Records: len(found)}
	j.logger().Info("low stock scan finished", slog.Int("warehouses", res.Warehouses), slog.Int("records", res.Records))
	return res, nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
