package order

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// TaskReconcilePrices is the asynq task type handled by the worker.
const TaskReconcilePrices = "order:reconcile_prices"

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewReconcileTask builds a reconcile task that may run for at most timeout. Only one can
// be queued per minute.
func NewReconcileTask(timeout time.Duration) *asynq.Task {
	if timeout <= 0 {
		timeout = DefaultReconcileTimeout
	}
	return asynq.NewTask(TaskReconcilePrices, nil,
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
		asynq.Unique(time.Minute),
	)
}

// ReconcileTaskHandler runs the reconciler for queued tasks. A run already in progress
// is not retried.
func ReconcileTaskHandler(r *Reconciler) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := r.ReconcilePendingOrders(ctx)
		if errors.Is(err, ErrReconcileInProgress) {
			return asynq.SkipRetry
		}
		return err
	}
}
