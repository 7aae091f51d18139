package store

import (
	"context"

	"github.com/phrazzld/studycache/internal/domain"
)

// EntryStore defines the interface for durable cache entry persistence.
// Implementations must be safe for concurrent use.
// Version: 1.0
type EntryStore interface {
	// Get retrieves an entry by its serialized query key.
	// Returns ErrEntryNotFound if no entry exists for the key.
	Get(ctx context.Context, key string) (*domain.CacheEntry, error)

	// PutIfNewer inserts the entry, or replaces an existing entry with the same
	// key only when the stored timestamp is strictly older than entry.Timestamp.
	// The comparison and the write happen atomically.
	// Returns true if the entry was written.
	PutIfNewer(ctx context.Context, entry *domain.CacheEntry) (bool, error)

	// GetAll returns every stored entry in key order.
	GetAll(ctx context.Context) ([]*domain.CacheEntry, error)

	// Delete removes the entries with the given keys in a single transaction.
	// Missing keys are ignored. Returns the number of entries removed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Clear removes every entry. Returns the number of entries removed.
	Clear(ctx context.Context) (int, error)

	// Size returns the approximate number of bytes the store occupies.
	Size(ctx context.Context) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
