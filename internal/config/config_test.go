package config

import (
	"os"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "emailsvc",
				Password: "secret",
				Name:     "email_service",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=emailsvc password=secret dbname=email_service sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.example.com",
				Port:    5433,
				User:    "admin",
				Name:    "mydb",
				SSLMode: "disable",
			},
			want: "host=db.example.com port=5433 user=admin password= dbname=mydb sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Backend: BackendMongoDB},
		MongoDB: MongoDBConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "email_service",
			Collection: "apps",
		},
		AWS:     AWSConfig{Region: "us-east-1", AuthMethod: AuthMethodDefault},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid minimal config", func(c *Config) {}, ""},
		{"port 0", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port 70000", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }, "invalid store backend"},
		{"mongodb without uri", func(c *Config) { c.MongoDB.URI = "" }, "mongodb.uri is required"},
		{"mongodb without collection", func(c *Config) { c.MongoDB.Collection = "" }, "mongodb.collection is required"},
		{"memory backend ignores mongodb", func(c *Config) {
			c.Store.Backend = BackendMemory
			c.MongoDB = MongoDBConfig{}
		}, ""},
		{"postgres without host", func(c *Config) {
			c.Store.Backend = BackendPostgres
			c.Database = DatabaseConfig{Name: "db", User: "u"}
		}, "database.host is required"},
		{"postgres complete", func(c *Config) {
			c.Store.Backend = BackendPostgres
			c.Database = DatabaseConfig{Host: "localhost", Name: "db", User: "u"}
		}, ""},
		{"static auth without keys", func(c *Config) { c.AWS.AuthMethod = AuthMethodStatic }, "access_key_id"},
		{"static auth with keys", func(c *Config) {
			c.AWS.AuthMethod = AuthMethodStatic
			c.AWS.AccessKeyID = "AKIA"
			c.AWS.SecretAccessKey = "secret"
		}, ""},
		{"assume_role without arn", func(c *Config) { c.AWS.AuthMethod = AuthMethodAssumeRole }, "aws.role_arn is required"},
		{"oidc without arn", func(c *Config) { c.AWS.AuthMethod = AuthMethodOIDC }, "aws.role_arn is required"},
		{"unknown auth method", func(c *Config) { c.AWS.AuthMethod = "kerberos" }, "invalid aws auth method"},
		{"empty auth method", func(c *Config) { c.AWS.AuthMethod = "" }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"pretty log format", func(c *Config) { c.Logging.Format = "pretty" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		if got := expandEnv("no-vars-here"); got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for explicit missing file, got nil")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Load() unexpected error kind: %v", err)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
store:
  backend: "memory"
keys:
  usage_plan_id: "plan-123"
  reveal_existing: true
logging:
  level: "debug"
  format: "pretty"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Keys.UsagePlanID != "plan-123" {
		t.Errorf("Keys.UsagePlanID = %q, want plan-123", cfg.Keys.UsagePlanID)
	}
	if !cfg.Keys.RevealExisting {
		t.Error("Keys.RevealExisting = false, want true")
	}
	if cfg.Logging.Format != "pretty" {
		t.Errorf("Logging.Format = %q, want pretty", cfg.Logging.Format)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
store:
  backend: "memory"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.MongoDB.Collection != "apps" {
		t.Errorf("default MongoDB.Collection = %q, want apps", cfg.MongoDB.Collection)
	}
	if cfg.Keys.RevealExisting {
		t.Error("default Keys.RevealExisting = true, want false")
	}
	if len(cfg.Security.CORS.AllowedOrigins) != 1 || cfg.Security.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("default CORS origins = %v, want [*]", cfg.Security.CORS.AllowedOrigins)
	}
	if cfg.Telemetry.Metrics.PrometheusPort != 9090 {
		t.Errorf("default PrometheusPort = %d, want 9090", cfg.Telemetry.Metrics.PrometheusPort)
	}
}

func TestLoad_UnprefixedPlatformVars(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://mongo.internal:27017")
	t.Setenv("USAGE_PLAN_ID", "plan-from-env")

	cfg, err := Load(writeTempConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MongoDB.URI != "mongodb://mongo.internal:27017" {
		t.Errorf("MongoDB.URI = %q, want value from MONGODB_URI", cfg.MongoDB.URI)
	}
	if cfg.Keys.UsagePlanID != "plan-from-env" {
		t.Errorf("Keys.UsagePlanID = %q, want value from USAGE_PLAN_ID", cfg.Keys.UsagePlanID)
	}
}

func TestLoad_PrefixedEnvOverridesFile(t *testing.T) {
	t.Setenv("EMAILSVC_SERVER_PORT", "7070")
	const content = `
server:
  port: 9999
store:
  backend: "memory"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 from env", cfg.Server.Port)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_MONGO_URI", "mongodb://expanded:27017")
	const content = `
mongodb:
  uri: "${TEST_MONGO_URI}"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MongoDB.URI != "mongodb://expanded:27017" {
		t.Errorf("MongoDB.URI = %q, want expanded value", cfg.MongoDB.URI)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "server: [unclosed")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	const content = `
store:
  backend: "mongodb"
mongodb:
  uri: ""
`
	t.Setenv("MONGODB_URI", "")
	_, err := Load(writeTempConfig(t, content))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}
