package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/phrazzld/studycache/internal/events"
)

// ActionClearCache is the ID of the action offered by quota warnings.
const ActionClearCache = "clear-cache"

const quotaWarningKey = "cache.quota_warning"

// Clearer wipes the persisted cache.
type Clearer interface {
	Clear(ctx context.Context)
}

// QuotaWarningHandler turns quota warning events into a notification that
// offers to clear the persisted cache.
type QuotaWarningHandler struct {
	center  *Center
	clearer Clearer
	logger  *slog.Logger
}

var _ events.EventHandler = (*QuotaWarningHandler)(nil)

// NewQuotaWarningHandler creates a handler posting to center. The clear
// action calls clearer.
func NewQuotaWarningHandler(center *Center, clearer Clearer, logger *slog.Logger) *QuotaWarningHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaWarningHandler{
		center:  center,
		clearer: clearer,
		logger:  logger.With("component", "quota_warning_handler"),
	}
}

// HandleEvent posts a notification for TypeQuotaWarning events and ignores
// everything else.
func (h *QuotaWarningHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeQuotaWarning {
		return nil
	}

	var warning events.QuotaWarning
	if err := event.UnmarshalPayload(&warning); err != nil {
		return fmt.Errorf("failed to decode quota warning payload: %w", err)
	}

	message := fmt.Sprintf(
		"Offline storage is %.0f%% full (%s of %s). Cached study data was not saved.",
		warning.Ratio*100,
		humanize.Bytes(uint64(max(warning.UsageBytes, 0))),
		humanize.Bytes(uint64(max(warning.QuotaBytes, 0))),
	)

	_, err := h.center.Post(Notification{
		Key:     quotaWarningKey,
		Level:   LevelWarning,
		Title:   "Storage almost full",
		Message: message,
		Actions: []Action{{
			ID:    ActionClearCache,
			Label: "Clear cache",
			Run: func(ctx context.Context) error {
				h.clearer.Clear(ctx)
				return nil
			},
		}},
	})
	if err != nil {
		return err
	}

	h.logger.Warn("quota warning raised",
		"usage", humanize.Bytes(uint64(max(warning.UsageBytes, 0))),
		"quota", humanize.Bytes(uint64(max(warning.QuotaBytes, 0))),
		"ratio", warning.Ratio)
	return nil
}
