// Package sqlite provides the embedded SQLite implementation of
// store.EntryStore. It is the default durable store for a single node.
package sqlite
