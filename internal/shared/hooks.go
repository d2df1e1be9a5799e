package shared

import (
	"context"
	"log/slog"
	"strconv"
)

// WorkflowEvent describes a committed workflow transition.
type WorkflowEvent struct {
	Workflow string
	Action   string
	EntityID int64
	Number   string
	Status   string
	ActorID  int64
	Meta     map[string]any
}

// Notifier delivers workflow events to external channels (email, SMS, webhooks).
type Notifier interface {
	Notify(ctx context.Context, evt WorkflowEvent) error
}

// TransitionRecorder counts workflow transitions.
type TransitionRecorder interface {
	RecordTransition(workflow, status string)
}

// Hooks bundles the side effects that run after a workflow transaction commits.
// Every field is optional.
type Hooks struct {
	Audit    AuditPort
	Notifier Notifier
	Metrics  TransitionRecorder
	Logger   *slog.Logger
}

// Committed records evt. Side-effect failures are logged and never returned: the
// workflow change is already durable.
func (h Hooks) Committed(ctx context.Context, evt WorkflowEvent) {
	if h.Audit != nil {
		meta := map[string]any{"status": evt.Status}
		if evt.Number != "" {
			meta["number"] = evt.Number
		}
		for k, v := range evt.Meta {
			meta[k] = v
		}
		err := h.Audit.Record(ctx, AuditLog{
			ActorID:  evt.ActorID,
			Action:   evt.Action,
			Entity:   evt.Workflow,
			EntityID: strconv.FormatInt(evt.EntityID, 10),
			Meta:     meta,
		})
		if err != nil {
			h.logger().Warn("audit log failed",
				slog.String("workflow", evt.Workflow),
				slog.String("action", evt.Action),
				slog.Int64("entity_id", evt.EntityID),
				slog.Any("error", err))
		}
	}
	if h.Metrics != nil && evt.Status != "" {
		h.Metrics.RecordTransition(evt.Workflow, evt.Status)
	}
	if h.Notifier != nil {
		if err := h.Notifier.Notify(ctx, evt); err != nil {
			h.logger().Warn("workflow notification failed",
				slog.String("workflow", evt.Workflow),
				slog.String("action", evt.Action),
				slog.Int64("entity_id", evt.EntityID),
				slog.Any("error", err))
		}
	}
}

func (h Hooks) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
