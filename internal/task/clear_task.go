package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ClearTask wipes the durable cache. Done is closed once it has run.
type ClearTask struct {
	baseTask
	persister Persister
	done      chan struct{}
}

// NewClearTask creates a clear task.
func NewClearTask(p Persister) *ClearTask {
	return &ClearTask{
		baseTask:  baseTask{id: uuid.New(), taskType: TaskTypeClear, status: TaskStatusPending},
		persister: p,
		done:      make(chan struct{}),
	}
}

// Execute clears the store.
func (t *ClearTask) Execute(ctx context.Context) error {
	defer close(t.done)
	t.setStatus(TaskStatusProcessing)
	t.persister.Clear(ctx)
	return t.finish(nil)
}

// Done is closed after Execute returns.
func (t *ClearTask) Done() <-chan struct{} {
	return t.done
}

// QueueClearer clears the cache through the task queue so clears are
// ordered with persists on the same worker.
type QueueClearer struct {
	queue     TaskQueueWriter
	persister Persister
}

// NewQueueClearer creates a clearer that enqueues ClearTasks on queue.
func NewQueueClearer(queue TaskQueueWriter, p Persister) *QueueClearer {
	return &QueueClearer{queue: queue, persister: p}
}

// Submit queues a clear and waits until it has run or ctx is done.
func (c *QueueClearer) Submit(ctx context.Context) error {
	t := NewClearTask(c.persister)
	if err := c.queue.Enqueue(t); err != nil {
		return fmt.Errorf("failed to queue cache clear: %w", err)
	}
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear queues a clear, falling back to clearing directly when the queue
// does not accept it.
func (c *QueueClearer) Clear(ctx context.Context) {
	if err := c.Submit(ctx); err != nil && ctx.Err() == nil {
		c.persister.Clear(ctx)
	}
}
