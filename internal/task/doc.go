// Package task runs background work for the query cache. Persists and
// clears are queued as tasks and executed by a worker pool; the persist
// pool runs a single worker so the durable store sees one writer at a
// time. PersistScheduler turns bursts of cache changes into one persist.
package task
