package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/persister"
)

// SnapshotSource supplies the current set of tracked queries.
type SnapshotSource interface {
	Snapshot() []domain.QueryState
}

// Persister is the part of the durable cache the tasks drive.
type Persister interface {
	Persist(ctx context.Context, queries []domain.QueryState) persister.PersistResult
	Clear(ctx context.Context)
}

// PersistTask snapshots its source when it runs, not when it is queued, so
// a queued task always writes the latest state.
type PersistTask struct {
	baseTask
	source    SnapshotSource
	persister Persister

	result persister.PersistResult
}

// NewPersistTask creates a persist task.
func NewPersistTask(source SnapshotSource, p Persister) *PersistTask {
	return &PersistTask{
		baseTask:  baseTask{id: uuid.New(), taskType: TaskTypePersist, status: TaskStatusPending},
		source:    source,
		persister: p,
	}
}

// Execute persists the current snapshot. A quota abort is not a task
// failure; storage errors are.
func (t *PersistTask) Execute(ctx context.Context) error {
	t.setStatus(TaskStatusProcessing)
	res := t.persister.Persist(ctx, t.source.Snapshot())

	t.mu.Lock()
	t.result = res
	t.mu.Unlock()

	if res.Err != nil && !errors.Is(res.Err, persister.ErrQuotaExceeded) {
		return t.finish(res.Err)
	}
	return t.finish(nil)
}

// Result returns the outcome of the last Execute.
func (t *PersistTask) Result() persister.PersistResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}
