// Package service contains the application use cases behind the HTTP API
// and the CLI. Services coordinate the query client, the persister and the
// spaced-repetition scorer; delivery code depends only on the interfaces
// defined here.
package service
