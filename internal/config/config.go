// Package config loads and validates the email service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the EMAILSVC_ prefix (e.g.,
// EMAILSVC_MONGODB_DATABASE overrides mongodb.database in the YAML).
//
// MONGODB_URI, USAGE_PLAN_ID and AWS_REGION are also read without the prefix
// because they are commonly injected by the deployment platform under those names.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// AWS authentication methods
const (
	AuthMethodDefault    = "default"
	AuthMethodStatic     = "static"
	AuthMethodOIDC       = "oidc"
	AuthMethodAssumeRole = "assume_role"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Keys      KeysConfig      `mapstructure:"keys"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig selects the app record backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// MongoDBConfig holds document store connection configuration
type MongoDBConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
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

// AWSConfig holds the session settings shared by the SES and API Gateway clients
type AWSConfig struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the service endpoint (LocalStack and similar)
	Endpoint string `mapstructure:"endpoint"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	// - "default": AWS default credential chain (env vars, shared config, IAM role, etc.)
	// - "static": explicit access key and secret key
	// - "oidc": Web Identity token (EKS, GitHub Actions, etc.)
	// - "assume_role": assume an IAM role, optionally with an external ID
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`

	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// KeysConfig holds API key provisioning settings
type KeysConfig struct {
	// UsagePlanID, when set, is the usage plan every new key is attached to
	UsagePlanID string `mapstructure:"usage_plan_id"`
	// RevealExisting surfaces the provider-held key value when a key already exists
	RevealExisting bool `mapstructure:"reveal_existing"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Store
		"store.backend",
		"mongodb.database",
		"mongodb.collection",
		"mongodb.connect_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// AWS
		"aws.endpoint",
		"aws.auth_method",
		"aws.access_key_id",
		"aws.secret_access_key",
		"aws.role_arn",
		"aws.role_session_name",
		"aws.external_id",
		"aws.web_identity_token_file",

		// Keys
		"keys.reveal_existing",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}

	// Platform-provided names, prefixed form first
	aliases := map[string][]string{
		"mongodb.uri":        {"EMAILSVC_MONGODB_URI", "MONGODB_URI"},
		"keys.usage_plan_id": {"EMAILSVC_KEYS_USAGE_PLAN_ID", "USAGE_PLAN_ID"},
		"aws.region":         {"EMAILSVC_AWS_REGION", "AWS_REGION"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/email-service")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("EMAILSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.MongoDB.URI = expandEnv(cfg.MongoDB.URI)
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.AWS.AccessKeyID = expandEnv(cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = expandEnv(cfg.AWS.SecretAccessKey)

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
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Store defaults
	v.SetDefault("store.backend", BackendMongoDB)
	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "email_service")
	v.SetDefault("mongodb.collection", "apps")
	v.SetDefault("mongodb.connect_timeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "email_service")
	v.SetDefault("database.user", "emailsvc")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.auth_method", AuthMethodDefault)
	v.SetDefault("aws.role_session_name", "email-service")

	// Key defaults
	v.SetDefault("keys.usage_plan_id", "")
	v.SetDefault("keys.reveal_existing", false)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "email-service")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("mongodb.uri is required when using the mongodb backend")
		}
		if c.MongoDB.Database == "" {
			return fmt.Errorf("mongodb.database is required when using the mongodb backend")
		}
		if c.MongoDB.Collection == "" {
			return fmt.Errorf("mongodb.collection is required when using the mongodb backend")
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when using the postgres backend")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when using the postgres backend")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when using the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid store backend: %s (must be mongodb, postgres, or memory)", c.Store.Backend)
	}

	switch c.AWS.AuthMethod {
	case "", AuthMethodDefault:
	case AuthMethodStatic:
		if c.AWS.AccessKeyID == "" || c.AWS.SecretAccessKey == "" {
			return fmt.Errorf("aws.access_key_id and aws.secret_access_key are required for static auth")
		}
	case AuthMethodAssumeRole, AuthMethodOIDC:
		if c.AWS.RoleARN == "" {
			return fmt.Errorf("aws.role_arn is required for %s auth", c.AWS.AuthMethod)
		}
	default:
		return fmt.Errorf("invalid aws auth method: %s (must be default, static, oidc, or assume_role)", c.AWS.AuthMethod)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "pretty" {
		return fmt.Errorf("invalid logging format: %s (must be json or pretty)", c.Logging.Format)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
