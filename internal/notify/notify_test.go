package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestQueueNotifierEnqueuesPayload(t *testing.T) {
	enq := &captureEnqueuer{}
	n := NewQueueNotifier(enq, "notifications")
	n.now = func() time.Time { return time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC) }

	err := n.Notify(context.Background(), shared.WorkflowEvent{
		Workflow: "dispatch",
		Action:   "DSP_SHIP",
		EntityID: 12,
		Number:   "DSP-2025-00001",
		Status:   "SHIPPED",
		ActorID:  7,
		Meta:     map[string]any{"shipped": int64(5)},
	})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskNotify, enq.tasks[0].Type())

	var queue string
	for _, opt := range enq.opts[0] {
		if opt.Type() == asynq.QueueOpt {
			queue = opt.Value().(string)
		}
	}
	assert.Equal(t, "notifications", queue)

	payload, err := DecodePayload(enq.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "DSP-2025-00001", payload.Number)
	assert.Equal(t, int64(7), payload.ActorID)
	assert.Equal(t, 5.0, payload.Meta["shipped"])
	assert.True(t, payload.OccurredAt.Equal(time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)))
}

func TestQueueNotifierWrapsEnqueueError(t *testing.T) {
	boom := errors.New("redis down")
	n := NewQueueNotifier(&captureEnqueuer{err: boom}, "")
	err := n.Notify(context.Background(), shared.WorkflowEvent{Workflow: "return", Action: "RMA_PROCESS"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "return/RMA_PROCESS")
}

func TestNilQueueNotifierIsNoop(t *testing.T) {
	var n *QueueNotifier
	assert.NoError(t, n.Notify(context.Background(), shared.WorkflowEvent{}))
}

func TestRenderFormatsNumbersAndAmounts(t *testing.T) {
	r := NewRenderer(language.English, "USD")
	line := r.Render(Payload{
		Workflow: "dispatch",
		Action:   "DSP_SHIP",
		Number:   "DSP-2025-00001",
		Status:   "SHIPPED",
		ActorID:  7,
		Meta: map[string]any{
			"shipped":         float64(1200),
			"refund_amount":   "35.00",
			"has_discrepancy": false,
		},
	})
	assert.Contains(t, line, "dispatch DSP_SHIP DSP-2025-00001 status=SHIPPED actor=7")
	assert.Contains(t, line, "shipped=1,200")
	assert.Contains(t, line, "has_discrepancy=false")
	assert.Contains(t, line, "refund_amount=")
	assert.Contains(t, line, "35")
}

func TestRenderUsesEntityIDWithoutNumber(t *testing.T) {
	r := NewRenderer(language.English, "not-a-code")
	line := r.Render(Payload{Workflow: "inventory_low_stock", Action: "LOW_STOCK", EntityID: 4})
	assert.Equal(t, "inventory_low_stock LOW_STOCK #4", line)
}
