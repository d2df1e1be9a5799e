package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands workflow events to the background worker through asynq.
type QueueNotifier struct {
	client Enqueuer
	queue  string
	now    func() time.Time
}

// NewQueueNotifier builds a notifier publishing to queue.
func NewQueueNotifier(client Enqueuer, queue string) *QueueNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueueNotifier{client: client, queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

var _ shared.Notifier = (*QueueNotifier)(nil)

// Notify enqueues evt. Each call gets its own task id so repeated events are
// all delivered.
func (n *QueueNotifier) Notify(ctx context.Context, evt shared.WorkflowEvent) error {
	if n == nil || n.client == nil {
		return nil
	}
	task, err := NewNotifyTask(PayloadFromEvent(evt, n.now()))
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.queue),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(5),
	); err != nil {
		return fmt.Errorf("notify: enqueue %s/%s: %w", evt.Workflow, evt.Action, err)
	}
	return nil
}
