package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tradewind-commerce/tradewind/internal/inventory"
	"github.com/tradewind-commerce/tradewind/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert is the task type for low-stock crossing notifications.
	TaskLowStockAlert = "inventory:low_stock_alert"
	// TaskIdempotencySweep is the cron task that prunes expired idempotency keys.
	TaskIdempotencySweep = "inventory:idempotency_sweep"
)

// NewLowStockAlertTask constructs an Asynq task from a crossing event.
func NewLowStockAlertTask(evt inventory.LowStockEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data, asynq.Queue(QueueDefault)), nil
}

// AlertDispatcher enqueues low-stock crossings for asynchronous delivery. It
// implements inventory.AlertHandler; the adjustment path never blocks on
// notification transport.
type AlertDispatcher struct {
	client *asynq.Client
}

// NewAlertDispatcher constructs the dispatcher.
func NewAlertDispatcher(client *asynq.Client) *AlertDispatcher {
	return &AlertDispatcher{client: client}
}

// HandleLowStockCrossing enqueues the alert task.
func (d *AlertDispatcher) HandleLowStockCrossing(ctx context.Context, evt inventory.LowStockEvent) error {
	task, err := NewLowStockAlertTask(evt)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("jobs: enqueue low stock alert: %w", err)
	}
	return nil
}

// NewLowStockAlertHandler returns the worker-side handler for alert tasks.
func NewLowStockAlertHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var evt inventory.LowStockEvent
		if err := json.Unmarshal(t.Payload(), &evt); err != nil {
			return asynq.SkipRetry
		}
		// Notification delivery (email, chat webhook) plugs in here; the
		// crossing itself is already on the audit stream.
		logger.Info("low stock alert",
			slog.Int64("store_id", evt.StoreID),
			slog.String("sku", evt.SKU),
			slog.Int64("quantity", evt.Quantity),
			slog.Int64("threshold", evt.Threshold),
			slog.String("status", string(evt.Status)))
		return nil
	}
}

// NewIdempotencySweepTask constructs the sweep task for cron registration.
func NewIdempotencySweepTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencySweep, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencySweepHandler prunes idempotency keys older than retention.
func NewIdempotencySweepHandler(logger *slog.Logger, store *shared.IdempotencyStore, retention time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			return fmt.Errorf("jobs: idempotency sweep: %w", err)
		}
		logger.Info("idempotency keys swept", slog.Duration("retention", retention))
		return nil
	}
}
