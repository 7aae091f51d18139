package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/studycache/internal/version"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. STUDYCACHE_SERVER_PORT.
const EnvPrefix = "STUDYCACHE"

// DefaultFamilies are the query families persisted when none are configured.
var DefaultFamilies = []string{"topics", "topic", "counts", "groups"}

var validate = validator.New()

// Load reads configuration from environment variables only.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from the optional file at path and from
// environment variables. Environment variables take precedence over values
// from the file. Returns a populated Config or an error if loading or
// validation fails.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-section rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Cache.Driver == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("config validation failed: %w",
			errors.New("database.url is required when cache.driver is postgres"))
	}
	return nil
}

// setDefaults registers every key so environment variables are picked up
// by Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "studycache.db")
	v.SetDefault("cache.version", version.Version)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.quota_bytes", int64(50<<20))
	v.SetDefault("cache.quota_threshold", 0.8)
	v.SetDefault("cache.families", DefaultFamilies)
	v.SetDefault("cache.persist_debounce", time.Second)
	v.SetDefault("cache.stale_time", 5*time.Minute)

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("backend.base_url", "http://localhost:8000/api")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.requests_per_second", 10.0)
	v.SetDefault("backend.burst", 20)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "studycache")
}
