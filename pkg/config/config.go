package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for songo-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8099"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Refresh pipeline configuration
	Refresh RefreshConfig `yaml:"refresh"`

	// Assistant (LLM) configuration
	Assistant AssistantConfig `yaml:"assistant"`

	// Source record API configuration
	Source SourceConfig `yaml:"source"`

	// Credential encryption key for source connection secrets.
	// A 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	// The server fails to start if this is not set.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"songo"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"songo_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RefreshConfig holds scheduler and executor settings.
type RefreshConfig struct {
	// TickInterval is how often the scheduler scans for due data sources.
	TickInterval time.Duration `yaml:"tick_interval" env:"REFRESH_TICK_INTERVAL" env-default:"1m"`
	// DefaultInterval is the refresh interval applied to connections that do not set one.
	DefaultInterval time.Duration `yaml:"default_interval" env:"REFRESH_DEFAULT_INTERVAL" env-default:"30m"`
	// FetchTimeout bounds a single upstream fetch inside one executor attempt.
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"REFRESH_FETCH_TIMEOUT" env-default:"60s"`
	// MaxRetries bounds transient-error retries within one run.
	MaxRetries int `yaml:"max_retries" env:"REFRESH_MAX_RETRIES" env-default:"3"`
	// AuditRetention is how long refresh audit entries are kept before the
	// daily sweep prunes them. Zero keeps the trail forever.
	AuditRetention time.Duration `yaml:"audit_retention" env:"REFRESH_AUDIT_RETENTION" env-default:"720h"`
}

// AssistantConfig holds generative assistant settings.
type AssistantConfig struct {
	// Provider selects the client implementation: "openai" or "anthropic".
	Provider string `yaml:"provider" env:"ASSISTANT_PROVIDER" env-default:"openai"`
	// Endpoint is the base URL for OpenAI-compatible providers.
	Endpoint string `yaml:"endpoint" env:"ASSISTANT_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"ASSISTANT_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"ASSISTANT_API_KEY"` // Secret - not in YAML
	// Timeout bounds a single completion call.
	Timeout time.Duration `yaml:"timeout" env:"ASSISTANT_TIMEOUT" env-default:"90s"`
	// MaxConcurrent bounds parallel generation calls (0 = unlimited).
	MaxConcurrent int `yaml:"max_concurrent" env:"ASSISTANT_MAX_CONCURRENT" env-default:"8"`
}

// SourceConfig holds record API client settings shared by all connections.
type SourceConfig struct {
	// BaseURL is the record API root. Per-connection paths are appended.
	BaseURL string `yaml:"base_url" env:"SOURCE_BASE_URL" env-default:"https://api.songodata.com/v1"`
	// Timeout bounds a single fetch request.
	Timeout time.Duration `yaml:"timeout" env:"SOURCE_TIMEOUT" env-default:"60s"`
	// MaxRecords caps the number of records fetched per data source per run.
	MaxRecords int `yaml:"max_records" env:"SOURCE_MAX_RECORDS" env-default:"10000"`
}

// Load reads configuration from the given YAML file with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. If the file does not exist, configuration comes from
// environment variables and defaults alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// Fall back to env-only configuration when no config file is present.
		if err2 := cleanenv.ReadEnv(cfg); err2 != nil {
			return nil, fmt.Errorf("failed to read configuration: %w", err2)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CredentialsKey == "" {
		return fmt.Errorf("CREDENTIALS_KEY is required")
	}
	if c.Refresh.TickInterval <= 0 {
		return fmt.Errorf("refresh tick_interval must be positive")
	}
	if c.Refresh.MaxRetries < 0 {
		return fmt.Errorf("refresh max_retries must not be negative")
	}
	if c.Refresh.AuditRetention < 0 {
		return fmt.Errorf("refresh audit_retention must not be negative")
	}
	switch c.Assistant.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported assistant provider %q", c.Assistant.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
