// Package backend is the HTTP client for the remote study-aid API. It maps
// query keys to GET requests and is the fetcher behind the query cache.
package backend
