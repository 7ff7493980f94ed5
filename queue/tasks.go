package queue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// taskQueueKey is the single global priority queue.
const taskQueueKey = "queue:tasks:priority"

// Tasks is the global priority task queue, scored by caller-supplied numeric
// priority with higher scores dequeued first.
type Tasks struct {
	adapter *store.Adapter
	logger  *slog.Logger
}

// NewTasks builds the task queue.
func NewTasks(adapter *store.Adapter, logger *slog.Logger) *Tasks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tasks{adapter: adapter, logger: logger}
}

// Enqueue adds the task at the given priority. Re-enqueueing an existing
// task updates its priority instead of duplicating it.
func (t *Tasks) Enqueue(ctx context.Context, taskID string, priority float64) error {
	err := t.adapter.Writer().ZAdd(ctx, taskQueueKey, redis.Z{
		Score:  priority,
		Member: taskID,
	}).Err()
	if err != nil {
		return storeerr.Network("queue.EnqueueTask", err).
			WithContext(map[string]any{"taskId": taskID})
	}
	return nil
}

// Dequeue atomically pops the highest-priority task, or returns empty when
// the queue is empty. Ties break by the store's native sorted-set ordering.
// Delivery is at-most-once: a popped task is gone even if the consumer
// crashes before completing it.
func (t *Tasks) Dequeue(ctx context.Context) (string, error) {
	popped, err := t.adapter.Writer().ZPopMax(ctx, taskQueueKey, 1).Result()
	if err != nil {
		return "", storeerr.Network("queue.DequeueTask", err)
	}

	if len(popped) == 0 {
		return "", nil
	}

	taskID, _ := popped[0].Member.(string)
	return taskID, nil
}

// Length returns the number of queued tasks.
func (t *Tasks) Length(ctx context.Context) (int64, error) {
	length, err := t.adapter.Reader().ZCard(ctx, taskQueueKey).Result()
	if err != nil {
		return 0, storeerr.Network("queue.QueueLength", err)
	}
	return length, nil
}
