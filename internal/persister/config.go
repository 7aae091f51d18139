package persister

import (
	"fmt"
	"time"
)

// Defaults applied by NewConfig.
const (
	DefaultTTL            = 24 * time.Hour
	DefaultQuotaThreshold = 0.8
)

// DefaultFamilies are the query families persisted when none are configured.
var DefaultFamilies = []string{"topics", "topic", "counts", "groups"}

// Config controls what the persister keeps and for how long.
type Config struct {
	// Version tags every written entry; entries with another version are dead.
	Version string
	// TTL is the retention window measured from an entry's write timestamp.
	TTL time.Duration
	// Families is the allow-list of query families eligible for persistence.
	Families []string
	// QuotaThreshold is the usage ratio above which persists are aborted.
	QuotaThreshold float64
}

// NewConfig returns a Config for version with default retention, threshold
// and families.
func NewConfig(version string) Config {
	return Config{
		Version:        version,
		TTL:            DefaultTTL,
		Families:       append([]string(nil), DefaultFamilies...),
		QuotaThreshold: DefaultQuotaThreshold,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidConfig)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, c.TTL)
	}
	if len(c.Families) == 0 {
		return fmt.Errorf("%w: at least one query family is required", ErrInvalidConfig)
	}
	if c.QuotaThreshold <= 0 || c.QuotaThreshold > 1 {
		return fmt.Errorf("%w: quota threshold must be in (0, 1], got %v", ErrInvalidConfig, c.QuotaThreshold)
	}
	return nil
}
