package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/studycache/internal/api/shared"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/domain/srs"
	"github.com/phrazzld/studycache/internal/notify"
	"github.com/phrazzld/studycache/internal/platform/backend"
	"github.com/phrazzld/studycache/internal/service"
	"github.com/phrazzld/studycache/internal/service/auth"
	"github.com/phrazzld/studycache/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, notify.ErrNotificationNotFound),
		errors.Is(err, notify.ErrActionNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Upstream errors
	case backend.IsStatus(err, http.StatusNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrFetchFailed):
		return http.StatusBadGateway

	// Bad request errors
	case errors.As(err, &validationErrs),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyQueryKey),
		errors.Is(err, domain.ErrInvalidQueryKey),
		errors.Is(err, domain.ErrInvalidQueryStatus),
		errors.Is(err, domain.ErrInvalidQuality),
		errors.Is(err, domain.ErrInvalidEaseFactor),
		errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, srs.ErrNilCard),
		errors.Is(err, service.ErrEmptySnapshot),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, backend.ErrUnsupportedKey),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	// Availability
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, store.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, notify.ErrNotificationNotFound):
		return "Notification not found"
	case errors.Is(err, notify.ErrActionNotFound):
		return "Notification action not found"
	case errors.Is(err, store.ErrNotFound):
		return "Entry not found"

	case backend.IsStatus(err, http.StatusNotFound):
		return "Query not found"
	case errors.Is(err, service.ErrFetchFailed):
		return "Failed to fetch query"

	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrEmptyQueryKey):
		return "Query key cannot be empty"
	case errors.Is(err, domain.ErrInvalidQueryKey),
		errors.Is(err, backend.ErrUnsupportedKey):
		return "Invalid query key"
	case errors.Is(err, domain.ErrInvalidQueryStatus):
		return "Invalid query status"
	case errors.Is(err, domain.ErrInvalidQuality):
		return "Quality must be between 0 and 5"
	case errors.Is(err, domain.ErrInvalidEaseFactor):
		return "Ease factor must be at least 1.3"
	case errors.Is(err, domain.ErrInvalidInterval):
		return "Interval cannot be negative"
	case errors.Is(err, service.ErrEmptySnapshot):
		return "Snapshot contains no queries"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, srs.ErrNilCard):
		return "Validation error"

	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, store.ErrStoreClosed):
		return "Cache storage unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}

	// Fall back to parsing the message of errors that only carry text
	errMsg := err.Error()
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 5 {
				return fmt.Sprintf("Invalid %s: %s", fieldParts[1], getValidationTagMessage(fieldParts[3]))
			}
			if len(fieldParts) >= 3 {
				return fmt.Sprintf("Invalid %s", fieldParts[1])
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gte", "lte", "gt", "lt":
		return "out of range"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. A non-empty
// message overrides the default safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// HandleValidationError writes a 400 response for a request that failed
// decoding or struct validation.
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	message := "Invalid request format"
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		message = SanitizeValidationError(err)
	case errors.Is(err, shared.ErrEmptyBody):
		message = "Request body is required"
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, message, err)
}
