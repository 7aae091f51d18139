package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Backend  BackendConfig  `mapstructure:"backend" validate:"required"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// CacheConfig controls the persisted query cache.
type CacheConfig struct {
	// Driver selects the durable engine: sqlite, postgres or memory.
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres memory"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	// Version tags every written entry; entries with another version are purged.
	Version string `mapstructure:"version" validate:"required"`
	// TTL is the retention window measured from an entry's last write.
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
	// QuotaBytes is the storage budget used for the usage estimate. Zero
	// means no estimate is available and the quota check never aborts.
	QuotaBytes int64 `mapstructure:"quota_bytes" validate:"gte=0"`
	// QuotaThreshold is the usage ratio above which persisting is aborted.
	QuotaThreshold float64 `mapstructure:"quota_threshold" validate:"gt=0,lte=1"`
	// Families is the allow-list of query families eligible for persistence.
	Families []string `mapstructure:"families" validate:"min=1,dive,required"`
	// PersistDebounce collapses bursts of cache changes into one persist.
	PersistDebounce time.Duration `mapstructure:"persist_debounce" validate:"gte=0"`
	// StaleTime is how long fetched data is served without refetching.
	StaleTime time.Duration `mapstructure:"stale_time" validate:"gte=0"`
}

// DatabaseConfig contains the PostgreSQL settings used by the postgres driver.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// BackendConfig describes the remote study-aid HTTP backend.
type BackendConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"gt=0"`
}

// TracingConfig enables OpenTelemetry export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" validate:"omitempty,url"`
	ServiceName string `mapstructure:"service_name"`
}
