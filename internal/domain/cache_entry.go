package domain

import (
	"errors"
	"time"
)

// Common validation errors for CacheEntry
var (
	ErrEmptyEntryKey     = errors.New("cache entry key cannot be empty")
	ErrEmptyEntryVersion = errors.New("cache entry version cannot be empty")
	ErrEmptyEntryPayload = errors.New("cache entry payload cannot be empty")
	ErrInvalidTimestamp  = errors.New("cache entry timestamp must be positive")
)

// CacheEntry is one durable record of the persisted query cache.
type CacheEntry struct {
	Key       string `json:"key"`
	Version   string `json:"version"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds of the last write
}

// Validate checks if the CacheEntry has valid data.
func (e *CacheEntry) Validate() error {
	if e.Key == "" {
		return ErrEmptyEntryKey
	}
	if e.Version == "" {
		return ErrEmptyEntryVersion
	}
	if len(e.Payload) == 0 {
		return ErrEmptyEntryPayload
	}
	if e.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// WrittenAt returns the entry timestamp as a time.Time.
func (e *CacheEntry) WrittenAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Age returns how long ago the entry was written, relative to now.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt())
}

// IsLive reports whether the entry matches the running version and is
// still inside the retention window.
func (e *CacheEntry) IsLive(version string, ttl time.Duration, now time.Time) bool {
	return e.Version == version && e.Age(now) <= ttl
}
