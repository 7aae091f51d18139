package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/persister"
)

// DefaultPersistDebounce is the quiet period after the last change before a
// persist is queued.
const DefaultPersistDebounce = time.Second

// PersistScheduler debounces cache change notifications into PersistTasks.
type PersistScheduler struct {
	source    SnapshotSource
	persister Persister
	queue     TaskQueueWriter
	debounce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewPersistScheduler creates a scheduler. A zero debounce queues a persist
// on every change.
func NewPersistScheduler(
	source SnapshotSource,
	p Persister,
	queue TaskQueueWriter,
	debounce time.Duration,
	logger *slog.Logger,
) *PersistScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce < 0 {
		debounce = 0
	}
	return &PersistScheduler{
		source:    source,
		persister: p,
		queue:     queue,
		debounce:  debounce,
		logger:    logger.With("component", "persist_scheduler"),
	}
}

// Notify records a change. The persist runs once no further change has
// arrived for the debounce period.
func (s *PersistScheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.debounce == 0 {
		s.enqueue()
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.fire)
		return
	}
	s.timer.Reset(s.debounce)
}

// OnQueryChange is a query client listener. Transitions into pending do
// not change what would be persisted and are ignored.
func (s *PersistScheduler) OnQueryChange(status domain.QueryStatus) {
	if status == domain.QueryStatusPending {
		return
	}
	s.Notify()
}

func (s *PersistScheduler) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.enqueue()
}

// enqueue must be called with s.mu held.
func (s *PersistScheduler) enqueue() {
	err := s.queue.Enqueue(NewPersistTask(s.source, s.persister))
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueFull):
		// A queued persist will snapshot the latest state anyway.
		s.logger.Debug("persist already pending, dropping trigger")
	default:
		s.logger.Warn("failed to queue persist", "error", err)
	}
}

// Stop cancels any pending debounce timer. Later notifications are ignored.
func (s *PersistScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Flush persists the current snapshot synchronously, bypassing the queue.
// It is used at shutdown after the worker pool has drained.
func (s *PersistScheduler) Flush(ctx context.Context) persister.PersistResult {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	res := s.persister.Persist(ctx, s.source.Snapshot())
	s.logger.InfoContext(ctx, "flushed query cache",
		"written", res.Written,
		"deleted", res.Deleted,
		"quota_exceeded", res.QuotaExceeded)
	return res
}
