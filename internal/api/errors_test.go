package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/studycache/internal/api/shared"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/notify"
	"github.com/phrazzld/studycache/internal/platform/backend"
	"github.com/phrazzld/studycache/internal/service"
	"github.com/phrazzld/studycache/internal/service/auth"
	"github.com/phrazzld/studycache/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", fmt.Errorf("validate: %w", auth.ErrExpiredToken), http.StatusUnauthorized},
		{"notification missing", notify.ErrNotificationNotFound, http.StatusNotFound},
		{"action missing", fmt.Errorf("%w: %q", notify.ErrActionNotFound, "x"), http.StatusNotFound},
		{"entry missing", store.ErrEntryNotFound, http.StatusNotFound},
		{"upstream 404", fmt.Errorf("%w: %w", service.ErrFetchFailed, &backend.StatusError{StatusCode: 404}), http.StatusNotFound},
		{"upstream 500", fmt.Errorf("%w: %w", service.ErrFetchFailed, &backend.StatusError{StatusCode: 500}), http.StatusBadGateway},
		{"bad quality", domain.ErrInvalidQuality, http.StatusBadRequest},
		{"bad ease", domain.ErrInvalidEaseFactor, http.StatusBadRequest},
		{"empty key", domain.ErrEmptyQueryKey, http.StatusBadRequest},
		{"bad status", domain.ErrInvalidQueryStatus, http.StatusBadRequest},
		{"empty snapshot", service.ErrEmptySnapshot, http.StatusBadRequest},
		{"validation error", domain.NewValidationError("key", "bad", nil), http.StatusBadRequest},
		{"unsupported key", backend.ErrUnsupportedKey, http.StatusBadRequest},
		{"store unavailable", store.ErrUnavailable, http.StatusServiceUnavailable},
		{"store closed", store.NewStoreError("entry", "get", "closed", store.ErrStoreClosed), http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Quality must be between 0 and 5", GetSafeErrorMessage(domain.ErrInvalidQuality))
	assert.Equal(t, "Notification not found", GetSafeErrorMessage(notify.ErrNotificationNotFound))
	assert.Equal(t, "Cache storage unavailable",
		GetSafeErrorMessage(fmt.Errorf("%w: dial tcp 10.0.0.1:5432", store.ErrUnavailable)))

	leaky := errors.New("open /var/lib/studycache/cache.db: password=secret")
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(leaky))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type req struct {
		ActionID string `validate:"required"`
	}
	err := validator.New().Struct(req{})
	require.Error(t, err)
	assert.Equal(t, "Invalid ActionID: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	req = req.WithContext(shared.SetTraceID(req.Context()))
	w := httptest.NewRecorder()

	HandleAPIError(w, req, fmt.Errorf("list: %w", store.ErrUnavailable), "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Cache storage unavailable", body.Error)
	assert.NotEmpty(t, body.TraceID)

	w = httptest.NewRecorder()
	HandleAPIError(w, req, errors.New("boom"), "Failed to read cache statistics")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to read cache statistics", body.Error)
}
