// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts HTTP to the cache, review and
// notification services; errors are mapped to status codes in one place
// (HandleAPIError) and redacted before they are logged.
package api
