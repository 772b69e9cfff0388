package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// StorageConfig contains settings for the Supabase-compatible object store
type StorageConfig struct {
	URL       string        `json:"url"`
	SecretKey string        `json:"secret_key"`
	PageSize  int           `json:"page_size"`
	MaxOffset int           `json:"max_offset"`
	Timeout   time.Duration `json:"timeout"`
}

// SweepConfig contains orphan sweep settings
type SweepConfig struct {
	Enabled     bool          `json:"enabled"`
	Schedule    string        `json:"schedule"`
	GracePeriod time.Duration `json:"grace_period"`
	Buckets     []string      `json:"buckets"`
	DryRun      bool          `json:"dry_run"`
}

// DatabaseConfig contains the application database connection settings
type DatabaseConfig struct {
	URL            string        `json:"url"`
	MaxConns       int32         `json:"max_conns"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// APIConfig contains admin API settings
type APIConfig struct {
	Enabled  bool   `json:"enabled"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	MetricsPort int `json:"metrics_port"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level string `json:"level"`
}

// Default values
const (
	DefaultSchedule    = "0 0 3 * * *"
	DefaultGracePeriod = 24 * time.Hour
	DefaultPageSize    = 100
	DefaultMaxOffset   = 100000
	MaxPageSize        = 1000
)

// DefaultBuckets are the buckets swept when SWEEP_BUCKETS is unset.
var DefaultBuckets = []string{"items", "locations", "profiles"}

type Config struct {
	Storage    StorageConfig
	Sweep      SweepConfig
	Database   DatabaseConfig
	Monitoring MonitoringConfig
	API        APIConfig
	Logging    LoggingConfig
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			URL:       strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_URL")), "/"),
			SecretKey: strings.TrimSpace(os.Getenv("STORAGE_SECRET_KEY")),
			PageSize:  getEnvAsIntWithDefault("STORAGE_PAGE_SIZE", DefaultPageSize),
			MaxOffset: getEnvAsIntWithDefault("STORAGE_MAX_OFFSET", DefaultMaxOffset),
			Timeout:   getEnvAsDurationWithDefault("STORAGE_TIMEOUT", 30*time.Second),
		},
		Sweep: SweepConfig{
			Enabled:     getEnvAsBoolWithDefault("SWEEP_ENABLED", true),
			Schedule:    getEnvWithDefault("SWEEP_SCHEDULE", DefaultSchedule),
			GracePeriod: getEnvAsDurationWithDefault("SWEEP_GRACE_PERIOD", DefaultGracePeriod),
			Buckets:     getEnvAsListWithDefault("SWEEP_BUCKETS", DefaultBuckets),
			DryRun:      getEnvAsBoolWithDefault("SWEEP_DRY_RUN", false),
		},
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxConns:       int32(getEnvAsInt64WithDefault("DATABASE_MAX_CONNS", 5)),
			ConnectTimeout: getEnvAsDurationWithDefault("DATABASE_CONNECT_TIMEOUT", 10*time.Second),
		},
		Monitoring: MonitoringConfig{
			MetricsPort: getEnvAsIntWithDefault("MONITORING_METRICS_PORT", 9100),
		},
		API: APIConfig{
			Enabled:  getEnvAsBoolWithDefault("API_ENABLED", true),
			Port:     getEnvAsIntWithDefault("API_PORT", 8080),
			Username: getEnvWithDefault("API_USERNAME", "admin"),
			Password: os.Getenv("API_PASSWORD"),
		},
		Logging: LoggingConfig{
			Level: getEnvWithDefault("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errors []error

	for _, validate := range []func() error{
		c.validateStorageConfig,
		c.validateSweepConfig,
		c.validateDatabaseConfig,
		c.validateMonitoringConfig,
		c.validateAPIConfig,
	} {
		if err := validate(); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				errors = append(errors, ve.Errors...)
			} else {
				errors = append(errors, err)
			}
		}
	}

	return combineErrors(errors)
}

// Blank URL or key is allowed: the storage client then treats the store as unreachable.
func (c *Config) validateStorageConfig() error {
	var errors []error

	if c.Storage.PageSize <= 0 || c.Storage.PageSize > MaxPageSize {
		errors = append(errors, fmt.Errorf("STORAGE_PAGE_SIZE must be between 1 and %d", MaxPageSize))
	}
	if c.Storage.MaxOffset < c.Storage.PageSize {
		errors = append(errors, fmt.Errorf("STORAGE_MAX_OFFSET must not be smaller than STORAGE_PAGE_SIZE"))
	}
	if c.Storage.Timeout <= 0 {
		errors = append(errors, fmt.Errorf("STORAGE_TIMEOUT must be positive"))
	}

	return combineErrors(errors)
}

func (c *Config) validateSweepConfig() error {
	var errors []error

	if c.Sweep.GracePeriod <= 0 {
		errors = append(errors, fmt.Errorf("SWEEP_GRACE_PERIOD must be positive"))
	}
	if len(c.Sweep.Buckets) == 0 {
		errors = append(errors, fmt.Errorf("SWEEP_BUCKETS must name at least one bucket"))
	}
	seen := make(map[string]bool, len(c.Sweep.Buckets))
	for _, bucket := range c.Sweep.Buckets {
		if !isValidBucketName(bucket) {
			errors = append(errors, fmt.Errorf("invalid bucket name: %q", bucket))
			continue
		}
		if seen[bucket] {
			errors = append(errors, fmt.Errorf("duplicate bucket name: %q", bucket))
		}
		seen[bucket] = true
	}
	if c.Sweep.Enabled {
		if ok, err := ParseCronSchedule(c.Sweep.Schedule); !ok {
			errors = append(errors, fmt.Errorf("invalid sweep schedule: %v", err))
		}
	}

	return combineErrors(errors)
}

func (c *Config) validateDatabaseConfig() error {
	var errors []error

	if c.Database.URL == "" {
		errors = append(errors, fmt.Errorf("DATABASE_URL is required"))
	}
	if c.Database.MaxConns <= 0 {
		errors = append(errors, fmt.Errorf("DATABASE_MAX_CONNS must be positive"))
	}
	if c.Database.ConnectTimeout <= 0 {
		errors = append(errors, fmt.Errorf("DATABASE_CONNECT_TIMEOUT must be positive"))
	}

	return combineErrors(errors)
}

func (c *Config) validateMonitoringConfig() error {
	// 0 disables the metrics server
	if c.Monitoring.MetricsPort < 0 || c.Monitoring.MetricsPort > 65535 {
		return NewValidationError([]error{fmt.Errorf("invalid metrics port number: %d", c.Monitoring.MetricsPort)})
	}
	return nil
}

func (c *Config) validateAPIConfig() error {
	if !c.API.Enabled {
		return nil
	}

	var errors []error

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errors = append(errors, fmt.Errorf("invalid API port number: %d", c.API.Port))
	}
	if c.API.Username == "" {
		errors = append(errors, fmt.Errorf("API_USERNAME is required"))
	}
	if c.API.Password == "" {
		errors = append(errors, fmt.Errorf("API_PASSWORD is required"))
	}

	return combineErrors(errors)
}

// Helper function to combine multiple errors
func combineErrors(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	return NewValidationError(errors)
}

// ValidationError represents multiple configuration validation errors
type ValidationError struct {
	Errors []error
}

// NewValidationError creates a new ValidationError
func NewValidationError(errors []error) *ValidationError {
	return &ValidationError{Errors: errors}
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	var errorMsgs []string
	errorMsgs = append(errorMsgs, "configuration validation failed:")
	for _, err := range ve.Errors {
		errorMsgs = append(errorMsgs, "  - "+err.Error())
	}
	return strings.Join(errorMsgs, "\n")
}

// isValidBucketName accepts the lowercase names storage buckets are created with.
func isValidBucketName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for _, r := range name {
		if !isAlphanumeric(r) && r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
