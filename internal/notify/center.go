package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level describes how prominently a notification should be shown.
type Level string

// Notification levels
const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ActionFunc is run when the user triggers a notification action.
type ActionFunc func(ctx context.Context) error

// Action is a one-click operation offered by a notification.
type Action struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Run   ActionFunc `json:"-"`
}

// Notification is a dismissible message shown to the user.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key,omitempty"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Actions   []Action  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
}

// Center holds the open notifications. It is safe for concurrent use.
type Center struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*Notification
	logger *slog.Logger
	now    func() time.Time
}

// NewCenter creates an empty notification center.
func NewCenter(logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{
		items:  make(map[uuid.UUID]*Notification),
		logger: logger.With("component", "notification_center"),
		now:    time.Now,
	}
}

// Post adds a notification and returns the stored copy. A notification with
// a non-empty Key replaces any open notification with the same Key, so a
// repeated warning is shown once.
func (c *Center) Post(n Notification) (Notification, error) {
	if n.Title == "" {
		return Notification{}, ErrEmptyTitle
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}
	n.ID = uuid.New()
	n.CreatedAt = c.now().UTC()
	n.Actions = append([]Action(nil), n.Actions...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if n.Key != "" {
		for id, existing := range c.items {
			if existing.Key == n.Key {
				delete(c.items, id)
			}
		}
	}
	c.items[n.ID] = &n

	c.logger.Info("notification posted",
		"notification_id", n.ID,
		"key", n.Key,
		"level", n.Level,
		"title", n.Title)

	return n, nil
}

// List returns the open notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, 0, len(c.items))
	for _, n := range c.items {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Dismiss removes a notification without running any action.
func (c *Center) Dismiss(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; !ok {
		return ErrNotificationNotFound
	}
	delete(c.items, id)
	c.logger.Debug("notification dismissed", "notification_id", id)
	return nil
}

// Trigger runs the named action of a notification. The notification is
// dismissed once the action succeeds and kept open when it fails.
func (c *Center) Trigger(ctx context.Context, id uuid.UUID, actionID string) error {
	c.mu.Lock()
	n, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotificationNotFound
	}
	var action *Action
	for i := range n.Actions {
		if n.Actions[i].ID == actionID {
			action = &n.Actions[i]
			break
		}
	}
	c.mu.Unlock()

	if action == nil {
		return fmt.Errorf("%w: %q", ErrActionNotFound, actionID)
	}

	log := c.logger.With("notification_id", id, "action_id", actionID)
	if action.Run != nil {
		if err := action.Run(ctx); err != nil {
			log.Error("notification action failed", "error", err)
			return fmt.Errorf("action %q failed: %w", actionID, err)
		}
	}
	log.Info("notification action completed")

	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
	return nil
}
