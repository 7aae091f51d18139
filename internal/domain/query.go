package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueryStatus is the lifecycle state of a tracked logical query.
type QueryStatus string

// Possible query status values
const (
	QueryStatusPending QueryStatus = "pending"
	QueryStatusSuccess QueryStatus = "success"
	QueryStatusError   QueryStatus = "error"
)

// IsValid reports whether s is a known status.
func (s QueryStatus) IsValid() bool {
	switch s {
	case QueryStatusPending, QueryStatusSuccess, QueryStatusError:
		return true
	default:
		return false
	}
}

// QueryKey identifies a logical query, e.g. ["topics", {"page": 2, "limit": 35}].
// The first element is the query family.
type QueryKey []any

// Family returns the first key element, the query family.
// It returns an empty string for an empty key.
func (k QueryKey) Family() string {
	if len(k) == 0 {
		return ""
	}
	if s, ok := k[0].(string); ok {
		return s
	}
	return fmt.Sprint(k[0])
}

// Hash returns the canonical serialization of the key. Object members are
// emitted in sorted order, so the same logical request always hashes the same.
func (k QueryKey) Hash() (string, error) {
	if len(k) == 0 {
		return "", ErrEmptyQueryKey
	}
	b, err := json.Marshal([]any(k))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQueryKey, err)
	}
	return string(b), nil
}

// Validate checks that the key has a non-empty string family.
func (k QueryKey) Validate() error {
	if len(k) == 0 {
		return ErrEmptyQueryKey
	}
	family, ok := k[0].(string)
	if !ok || family == "" {
		return NewValidationError("key", "must start with a non-empty family name", ErrInvalidQueryKey)
	}
	return nil
}

// ParseQueryKey decodes a JSON array into a QueryKey.
func ParseQueryKey(raw string) (QueryKey, error) {
	var key QueryKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQueryKey, err)
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

// QueryState is the fetch layer's view of one logical query. Data holds the
// last successful payload; it survives a pending refetch and a failed one.
type QueryState struct {
	Key       QueryKey        `json:"key"`
	Status    QueryStatus     `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasData reports whether the state carries a defined payload.
func (s *QueryState) HasData() bool {
	return len(s.Data) > 0 && string(s.Data) != "null"
}

// Snapshot is a restored view of the durable cache used to seed the fetch layer.
type Snapshot struct {
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Queries   []QueryState `json:"queries"`
}

// NewEmptySnapshot returns a snapshot without seed data.
func NewEmptySnapshot(version string, now time.Time) *Snapshot {
	return &Snapshot{
		Version:   version,
		Timestamp: now,
		Queries:   []QueryState{},
	}
}

// IsEmpty reports whether the snapshot carries no queries.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Queries) == 0
}
