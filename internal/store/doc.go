// Package store defines interfaces for data persistence operations.
// These interfaces abstract the durable key/value engine behind the
// persisted query cache, so the cache policy stays independent of whether
// entries live in SQLite, PostgreSQL or memory.
package store
