// Package quota estimates how much of its storage budget the persisted
// cache is using.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrUnknown is returned when usage or quota cannot be determined.
var ErrUnknown = errors.New("storage usage unknown")

// Usage is one reading of storage consumption, in bytes.
type Usage struct {
	Used  int64
	Quota int64
}

// Ratio returns Used/Quota, or 0 when no quota is set.
func (u Usage) Ratio() float64 {
	if u.Quota <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Quota)
}

// Exceeds reports whether usage is strictly above threshold of the quota.
func (u Usage) Exceeds(threshold float64) bool {
	return u.Quota > 0 && u.Ratio() > threshold
}

// String renders the usage for logs, e.g. "42 MB of 50 MB".
func (u Usage) String() string {
	return fmt.Sprintf("%s of %s",
		humanize.Bytes(uint64(max(u.Used, 0))),
		humanize.Bytes(uint64(max(u.Quota, 0))))
}

// Estimator reports storage usage. Implementations return ErrUnknown when
// no estimate is available.
type Estimator interface {
	Estimate(ctx context.Context) (Usage, error)
}

// Sizer is anything that can report its own size in bytes.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// StoreEstimator compares a store's size against a fixed byte budget.
type StoreEstimator struct {
	sizer Sizer
	quota int64
}

var _ Estimator = (*StoreEstimator)(nil)

// NewStoreEstimator creates an estimator for sizer with the given budget.
// A non-positive quota disables estimation.
func NewStoreEstimator(sizer Sizer, quotaBytes int64) *StoreEstimator {
	return &StoreEstimator{sizer: sizer, quota: quotaBytes}
}

// Estimate returns the store's current size against the budget.
func (e *StoreEstimator) Estimate(ctx context.Context) (Usage, error) {
	if e == nil || e.sizer == nil || e.quota <= 0 {
		return Usage{}, ErrUnknown
	}
	used, err := e.sizer.Size(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return Usage{Used: used, Quota: e.quota}, nil
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(ctx context.Context) (Usage, error)

// Estimate calls f(ctx).
func (f EstimatorFunc) Estimate(ctx context.Context) (Usage, error) {
	return f(ctx)
}
