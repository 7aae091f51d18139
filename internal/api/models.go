package api

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/notify"
	"github.com/phrazzld/studycache/internal/persister"
	"github.com/phrazzld/studycache/internal/quota"
)

// QueryRequest asks the server to resolve one query key.
type QueryRequest struct {
	// Key is the logical query key, family first, e.g. ["topic", "t-1"].
	Key domain.QueryKey `json:"key" validate:"required,min=1"`
}

// PersistRequest carries a client-side snapshot to persist.
type PersistRequest struct {
	Queries []domain.QueryState `json:"queries" validate:"required,min=1"`
}

// ReviewRequest submits one flashcard review. A missing card is a card
// seen for the first time.
type ReviewRequest struct {
	Card    *domain.SRCardState `json:"card,omitempty"`
	Quality *int                `json:"quality"        validate:"required"`
}

// ReviewResponse is the card state after a review.
type ReviewResponse struct {
	Card domain.SRCardState `json:"card"`
}

// ActionRequest triggers a notification action.
type ActionRequest struct {
	ActionID string `json:"action_id" validate:"required"`
}

// UsageResponse describes storage usage against the quota.
type UsageResponse struct {
	UsedBytes  int64   `json:"used_bytes"`
	QuotaBytes int64   `json:"quota_bytes"`
	Ratio      float64 `json:"ratio"`
	Summary    string  `json:"summary"`
}

// PersistResponse reports the outcome of a persist call.
type PersistResponse struct {
	persister.PersistResult
	Usage *UsageResponse `json:"usage,omitempty"`
}

// StatsResponse reports the contents of the persisted cache.
type StatsResponse struct {
	Entries    int            `json:"entries"`
	Live       int            `json:"live"`
	Bytes      int64          `json:"bytes"`
	BytesHuman string         `json:"bytes_human"`
	Usage      *UsageResponse `json:"usage,omitempty"`
}

// NotificationResponse is one open notification.
type NotificationResponse struct {
	ID        string           `json:"id"`
	Key       string           `json:"key,omitempty"`
	Level     string           `json:"level"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Actions   []ActionResponse `json:"actions"`
	CreatedAt time.Time        `json:"created_at"`
}

// ActionResponse is one action offered by a notification.
type ActionResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func usageToResponse(u quota.Usage) *UsageResponse {
	return &UsageResponse{
		UsedBytes:  u.Used,
		QuotaBytes: u.Quota,
		Ratio:      u.Ratio(),
		Summary:    u.String(),
	}
}

func persistResultToResponse(res persister.PersistResult) PersistResponse {
	resp := PersistResponse{PersistResult: res}
	if res.Usage.Quota > 0 {
		resp.Usage = usageToResponse(res.Usage)
	}
	return resp
}

func statsToResponse(st persister.Stats) StatsResponse {
	resp := StatsResponse{
		Entries:    st.Entries,
		Live:       st.Live,
		Bytes:      st.Bytes,
		BytesHuman: humanize.Bytes(uint64(max(st.Bytes, 0))),
	}
	if st.UsageKnown {
		resp.Usage = usageToResponse(st.Usage)
	}
	return resp
}

func notificationToResponse(n notify.Notification) NotificationResponse {
	actions := make([]ActionResponse, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, ActionResponse{ID: a.ID, Label: a.Label})
	}
	return NotificationResponse{
		ID:        n.ID.String(),
		Key:       n.Key,
		Level:     string(n.Level),
		Title:     n.Title,
		Message:   n.Message,
		Actions:   actions,
		CreatedAt: n.CreatedAt,
	}
}
