// Package persister snapshots the fetch layer's successful query results to
// a durable store and restores them at boot.
//
// Only allow-listed query families in the success state are written. Writes
// are skipped entirely while the store is close to its quota, and entries
// written under another version or older than the retention window are
// excluded from restores and purged by the next persist. Storage failures
// never reach the caller: Persist reports them in its result, Restore falls
// back to an empty snapshot and Clear only logs.
package persister
