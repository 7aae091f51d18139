package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// The API layer maps them to HTTP status codes.
var (
	// ErrFetchFailed indicates the backend could not supply a query's data.
	// API layer should map this to HTTP 502 Bad Gateway.
	ErrFetchFailed = errors.New("query fetch failed")

	// ErrEmptySnapshot indicates a persist request carried no queries.
	// API layer should map this to HTTP 400 Bad Request.
	ErrEmptySnapshot = errors.New("snapshot contains no queries")
)
