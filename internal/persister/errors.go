package persister

import "errors"

var (
	// ErrQuotaExceeded is reported in PersistResult.Err when a persist was
	// aborted because the store is close to its quota.
	ErrQuotaExceeded = errors.New("storage near quota; persist skipped")

	// ErrInvalidConfig indicates the persister was constructed with unusable settings.
	ErrInvalidConfig = errors.New("invalid persister configuration")
)
