// Package config provides configuration management for the composite service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig      `envPrefix:"SERVER_"`
	Backend     BackendConfig     `envPrefix:"BACKEND_"`
	Memory      MemoryConfig      `envPrefix:"MEMORY_"`
	Remote      RemoteConfig      `envPrefix:"REMOTE_"`
	Composite   CompositeConfig   `envPrefix:"COMPOSITE_"`
	Cache       CacheConfig       `envPrefix:"CACHE_"`
	Collections CollectionsConfig `envPrefix:"COLLECTIONS_"`
	STAC        STACConfig        `envPrefix:"STAC_"`
	Features    FeatureConfig     `envPrefix:"FEATURE_"`
	Logging     LoggingConfig     `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// BackendConfig contains collection service selection.
type BackendConfig struct {
	// Type specifies which collection service to use: "memory" or "remote"
	Type string `env:"TYPE" envDefault:"memory"`
}

// MemoryConfig configures the in-process collection service.
type MemoryConfig struct {
	// DataDir holds one <collection>.json records file per collection.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`
}

// RemoteConfig configures the HTTP collection service client.
type RemoteConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:9000"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
	APIKey  string        `env:"API_KEY" envDefault:""`
}

// CompositeConfig contains moving-window compositing defaults and limits.
type CompositeConfig struct {
	DefaultWindowDays float64 `env:"DEFAULT_WINDOW_DAYS" envDefault:"5"`
	MaxWindowDays     float64 `env:"MAX_WINDOW_DAYS" envDefault:"365"`
	MatchingProperty  string  `env:"MATCHING_PROPERTY" envDefault:"system:time_start"`
	NoDataPolicy      string  `env:"NODATA_POLICY" envDefault:"propagate"`
	// Reducer selects where group means are computed: "local" or "remote"
	Reducer string `env:"REDUCER" envDefault:"local"`
	// Workers bounds concurrent reductions; 0 means GOMAXPROCS.
	Workers int `env:"WORKERS" envDefault:"0"`
}

// CacheConfig configures the fetch cache in front of the collection service.
type CacheConfig struct {
	// Size is the number of cached fetch results; 0 disables caching.
	Size int `env:"SIZE" envDefault:"128"`
}

// CollectionsConfig locates the collection definition files.
type CollectionsConfig struct {
	Dir string `env:"DIR" envDefault:"./collections"`
}

// STACConfig contains STAC API metadata configuration.
type STACConfig struct {
	Version     string `env:"VERSION" envDefault:"1.0.0"`
	BaseURL     string `env:"BASE_URL"` // Public-facing URL (required)
	Title       string `env:"TITLE" envDefault:"Composite STAC API"`
	Description string `env:"DESCRIPTION" envDefault:"Moving-window temporal composites of raster collections"`
}

// FeatureConfig contains feature flags and limits.
type FeatureConfig struct {
	EnableCover   bool `env:"ENABLE_COVER" envDefault:"true"`
	EnableMetrics bool `env:"ENABLE_METRICS" envDefault:"true"`
	DefaultLimit  int  `env:"DEFAULT_LIMIT" envDefault:"100"`
	MaxLimit      int  `env:"MAX_LIMIT" envDefault:"1000"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	switch c.Backend.Type {
	case "memory":
		if c.Memory.DataDir == "" {
			return fmt.Errorf("memory data directory is required")
		}
	case "remote":
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote base URL is required")
		}
		if c.Remote.Timeout <= 0 {
			return fmt.Errorf("remote timeout must be positive, got %s", c.Remote.Timeout)
		}
	default:
		return fmt.Errorf("backend type must be 'memory' or 'remote', got %q", c.Backend.Type)
	}

	if c.Composite.DefaultWindowDays < 0 {
		return fmt.Errorf("default window must be non-negative, got %v", c.Composite.DefaultWindowDays)
	}

	if c.Composite.MaxWindowDays < c.Composite.DefaultWindowDays {
		return fmt.Errorf("max window (%v) must be >= default window (%v)", c.Composite.MaxWindowDays, c.Composite.DefaultWindowDays)
	}

	if c.Composite.MatchingProperty == "" {
		return fmt.Errorf("matching property is required")
	}

	if c.Composite.NoDataPolicy != "propagate" && c.Composite.NoDataPolicy != "filter" {
		return fmt.Errorf("invalid nodata policy %q, must be one of: propagate, filter", c.Composite.NoDataPolicy)
	}

	if c.Composite.Reducer != "local" && c.Composite.Reducer != "remote" {
		return fmt.Errorf("invalid reducer %q, must be one of: local, remote", c.Composite.Reducer)
	}

	if c.Composite.Workers < 0 {
		return fmt.Errorf("composite workers must be non-negative, got %d", c.Composite.Workers)
	}

	if c.Cache.Size < 0 {
		return fmt.Errorf("cache size must be non-negative, got %d", c.Cache.Size)
	}

	if c.STAC.BaseURL == "" {
		return fmt.Errorf("STAC base URL is required")
	}

	if c.STAC.Version == "" {
		return fmt.Errorf("STAC version is required")
	}

	if c.Features.DefaultLimit < 1 {
		return fmt.Errorf("default limit must be at least 1, got %d", c.Features.DefaultLimit)
	}

	if c.Features.MaxLimit < c.Features.DefaultLimit {
		return fmt.Errorf("max limit (%d) must be >= default limit (%d)", c.Features.MaxLimit, c.Features.DefaultLimit)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
