package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedKey indicates a key element that cannot be mapped to a URL.
	ErrUnsupportedKey = errors.New("unsupported query key element")

	// ErrInvalidResponse indicates the backend answered with a body that is not JSON.
	ErrInvalidResponse = errors.New("invalid backend response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("backend returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
