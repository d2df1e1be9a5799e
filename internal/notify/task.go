package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

const (
	// TaskNotify carries a committed workflow event to the worker.
	TaskNotify = "workflow:notify"
	// TaskLowStockScan triggers the periodic reorder point scan.
	TaskLowStockScan = "inventory:low_stock_scan"
	// DefaultQueue is used when no queue is configured.
	DefaultQueue = "default"
)

// Payload is the JSON body of a TaskNotify task.
type Payload struct {
	Workflow   string         `json:"workflow"`
	Action     string         `json:"action"`
	EntityID   int64          `json:"entity_id"`
	Number     string         `json:"number,omitempty"`
	Status     string         `json:"status,omitempty"`
	ActorID    int64          `json:"actor_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// PayloadFromEvent snapshots evt for queueing.
func PayloadFromEvent(evt shared.WorkflowEvent, at time.Time) Payload {
	return Payload{
		Workflow:   evt.Workflow,
		Action:     evt.Action,
		EntityID:   evt.EntityID,
		Number:     evt.Number,
		Status:     evt.Status,
		ActorID:    evt.ActorID,
		Meta:       evt.Meta,
		OccurredAt: at,
	}
}

// NewNotifyTask encodes payload into an asynq task.
func NewNotifyTask(payload Payload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: encode payload: %w", err)
	}
	return asynq.NewTask(TaskNotify, data), nil
}

// DecodePayload reads the payload of a TaskNotify task.
func DecodePayload(t *asynq.Task) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return Payload{}, fmt.Errorf("notify: decode payload: %w", err)
	}
	return payload, nil
}

// LowStockScanPayload scopes a scan; a zero WarehouseID covers every warehouse.
type LowStockScanPayload struct {
	WarehouseID int64 `json:"warehouse_id,omitempty"`
	Limit       int   `json:"limit,omitempty"`
}

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}
