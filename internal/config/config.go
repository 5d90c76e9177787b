// Package config loads and validates the back-office service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the APP_ prefix (e.g., APP_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments without recompilation or different binaries.
//
// The JWT_SECRET variable has no APP_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// AuthConfig holds token issuance configuration
type AuthConfig struct {
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	// LoginMaxAttempts is the number of consecutive failed logins after which
	// the account is locked. 0 disables lockout.
	LoginMaxAttempts int `mapstructure:"login_max_attempts"`
	// LockoutMinutes is how long a locked account stays locked.
	LockoutMinutes int                `mapstructure:"lockout_minutes"`
	CORS           CORSConfig         `mapstructure:"cors"`
	RateLimiting   RateLimitingConfig `mapstructure:"rate_limiting"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. When RedisAddr is set
// the limiter is backed by Redis so the limit holds across replicas; otherwise
// an in-process token bucket is used.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db"`
}

// AuditConfig holds audit subsystem configuration
type AuditConfig struct {
	// EnableAccessAudit toggles ACCESS rows written by the access-log middleware.
	EnableAccessAudit bool `mapstructure:"enable_access_audit"`
	// EnableDataAudit toggles CREATE/UPDATE/DELETE rows written by the
	// change-capture hook. When false the hook is never registered.
	EnableDataAudit bool `mapstructure:"enable_data_audit"`
	// ExcludedPaths lists path prefixes that never produce ACCESS rows.
	// Each entry is either "/prefix" (all methods) or "METHOD:/prefix".
	ExcludedPaths []string `mapstructure:"excluded_paths"`
	// IncludedMethods limits ACCESS rows to these HTTP methods. Empty means all.
	IncludedMethods []string `mapstructure:"included_methods"`
	// ExcludeStatusCodes suppresses ACCESS rows for these response codes.
	ExcludeStatusCodes []int `mapstructure:"exclude_status_codes"`
	// RetentionDays is how long audit rows stay in the hot table before the
	// archiver moves them to cold storage.
	RetentionDays int `mapstructure:"retention_days"`
	// ArchiveIntervalHours determines how often the archiver job runs. 0
	// disables the background job (the archive-audit subcommand still works).
	ArchiveIntervalHours int `mapstructure:"archive_interval_hours"`
	// Shippers configures optional external shipping of ACCESS records.
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig selects the cold-storage sink for archived audit rows
type ArchiveConfig struct {
	Backend string             `mapstructure:"backend"` // local, s3, azure, gcs
	Local   LocalArchiveConfig `mapstructure:"local"`
	S3      S3ArchiveConfig    `mapstructure:"s3"`
	Azure   AzureArchiveConfig `mapstructure:"azure"`
	GCS     GCSArchiveConfig   `mapstructure:"gcs"`
}

// LocalArchiveConfig holds local filesystem archive configuration
type LocalArchiveConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// S3ArchiveConfig holds S3-compatible archive configuration
type S3ArchiveConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	// AuthMethod: "default" uses the AWS default credential chain, "static"
	// uses the explicit key pair below.
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
}

// AzureArchiveConfig holds Azure Blob Storage archive configuration
type AzureArchiveConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	Prefix        string `mapstructure:"prefix"`
}

// GCSArchiveConfig holds Google Cloud Storage archive configuration
type GCSArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	// CredentialsFile is a service account JSON key path; empty uses
	// Application Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
	Prefix          string `mapstructure:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Auth
		"auth.access_token_expiry",
		"auth.refresh_token_expiry",

		// Security
		"security.login_max_attempts",
		"security.lockout_minutes",
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.redis_addr",
		"security.rate_limiting.redis_password",
		"security.rate_limiting.redis_db",

		// Audit
		"audit.enable_access_audit",
		"audit.enable_data_audit",
		"audit.excluded_paths",
		"audit.included_methods",
		"audit.exclude_status_codes",
		"audit.retention_days",
		"audit.archive_interval_hours",

		// Archive
		"archive.backend",
		"archive.local.base_path",
		"archive.s3.endpoint",
		"archive.s3.region",
		"archive.s3.bucket",
		"archive.s3.auth_method",
		"archive.s3.access_key_id",
		"archive.s3.secret_access_key",
		"archive.s3.prefix",
		"archive.azure.account_name",
		"archive.azure.account_key",
		"archive.azure.container_name",
		"archive.azure.prefix",
		"archive.gcs.bucket",
		"archive.gcs.credentials_file",
		"archive.gcs.prefix",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/backoffice")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Security.RateLimiting.RedisPassword = expandEnv(cfg.Security.RateLimiting.RedisPassword)
	cfg.Archive.S3.SecretAccessKey = expandEnv(cfg.Archive.S3.SecretAccessKey)
	cfg.Archive.Azure.AccountKey = expandEnv(cfg.Archive.Azure.AccountKey)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "backoffice")
	v.SetDefault("database.user", "backoffice")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.access_token_expiry", "30m")
	v.SetDefault("auth.refresh_token_expiry", "168h")

	// Security defaults
	v.SetDefault("security.login_max_attempts", 5)
	v.SetDefault("security.lockout_minutes", 15)
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)

	// Audit defaults
	v.SetDefault("audit.enable_access_audit", true)
	v.SetDefault("audit.enable_data_audit", true)
	v.SetDefault("audit.excluded_paths", []string{"/docs", "/openapi.json", "GET:/health"})
	v.SetDefault("audit.included_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE"})
	v.SetDefault("audit.exclude_status_codes", []int{404})
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.archive_interval_hours", 0)

	// Archive defaults
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.local.base_path", "./archive")
	v.SetDefault("archive.s3.auth_method", "default")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands ${VAR} references so secrets can be injected indirectly
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}"))
	}
	return s
}

// Validate checks the configuration for invalid or inconsistent values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}

	if c.Security.LoginMaxAttempts < 0 {
		return fmt.Errorf("security.login_max_attempts must not be negative")
	}
	if c.Security.LockoutMinutes < 0 {
		return fmt.Errorf("security.lockout_minutes must not be negative")
	}

	for _, rule := range c.Audit.ExcludedPaths {
		path := rule
		if i := strings.Index(rule, ":"); i >= 0 {
			path = rule[i+1:]
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("audit.excluded_paths entry %q must contain an absolute path prefix", rule)
		}
	}

	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit.retention_days must be at least 1, got %d", c.Audit.RetentionDays)
	}

	switch c.Archive.Backend {
	case "local", "s3", "azure", "gcs":
	default:
		return fmt.Errorf("unsupported archive backend: %s (must be 'local', 's3', 'azure', or 'gcs')", c.Archive.Backend)
	}

	for _, s := range c.Audit.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("audit shipper of type webhook requires a url")
			}
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("audit shipper of type file requires a path")
			}
		default:
			return fmt.Errorf("unsupported audit shipper type: %s", s.Type)
		}
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}

// GetAddress returns the server listen address
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LockoutDuration returns the lockout window as a time.Duration
func (c *SecurityConfig) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutMinutes) * time.Minute
}
