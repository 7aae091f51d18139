package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/studycache/internal/api/shared"
	"github.com/phrazzld/studycache/internal/notify"
)

// NotificationCenter is the subset of notify.Center the handler needs.
type NotificationCenter interface {
	List() []notify.Notification
	Dismiss(id uuid.UUID) error
	Trigger(ctx context.Context, id uuid.UUID, actionID string) error
}

var _ NotificationCenter = (*notify.Center)(nil)

// NotificationHandler lists and acts on user notifications.
type NotificationHandler struct {
	center NotificationCenter
	logger *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(center NotificationCenter, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for NotificationHandler")
	}
	return &NotificationHandler{
		center: center,
		logger: logger.With(slog.String("component", "notification_handler")),
	}
}

// List handles GET /api/notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.center.List()
	resp := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, notificationToResponse(n))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Trigger handles POST /api/notifications/{id}/action.
func (h *NotificationHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.logger)

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid notification ID")
		return
	}

	var req ActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.center.Trigger(r.Context(), id, req.ActionID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("notification action run", slog.String("notification_id", id.String()),
		slog.String("action", req.ActionID))
	w.WriteHeader(http.StatusNoContent)
}

// Dismiss handles DELETE /api/notifications/{id}.
func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid notification ID")
		return
	}
	if err := h.center.Dismiss(id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
