// Package config defines CIRIS's typed configuration surface: struct
// fields with `yaml` tags and defaults, loaded from an optional YAML file
// and then overridden by environment variables, validated once at startup.
// Grounded on the teacher's core.Config (core/config.go): explicit
// field-by-field os.Getenv reads rather than a reflection-based loader,
// a Validate method that returns the §7 error taxonomy, and functional
// Option overrides applied last.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// Config is CIRIS's full runtime configuration.
type Config struct {
	OccurrenceID string `yaml:"occurrence_id"`

	HTTP       HTTPConfig       `yaml:"http"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Gate       GateConfig       `yaml:"gate"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Logging    LoggingConfig    `yaml:"logging"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Redis      RedisConfig      `yaml:"redis"`
	Audit      AuditConfig      `yaml:"audit"`
}

// RedisConfig configures internal/registry's optional occurrence
// presence heartbeat. Empty URL disables it entirely.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LLMConfig selects and configures the LLM Bus's provider (§4.2).
type LLMConfig struct {
	// Provider is "bedrock" or "mock". "mock" is the safe default so the
	// runtime boots without AWS credentials configured.
	Provider      string `yaml:"provider"`
	BedrockRegion string `yaml:"bedrock_region"`
	BedrockModel  string `yaml:"bedrock_model"`
}

// AuditConfig configures internal/audit's hash-chain signing.
type AuditConfig struct {
	// SigningKeySeedHex is a hex-encoded 32-byte Ed25519 seed. Left empty,
	// cmd/ciris generates an ephemeral key at startup and logs a warning —
	// acceptable for development, not for a deployment whose audit trail
	// must verify against a previously-published public key.
	SigningKeySeedHex string `yaml:"signing_key_seed_hex"`
}

// HTTPConfig configures internal/httpapi's server.
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProcessorConfig configures internal/processor.
type ProcessorConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RoundDeadline time.Duration `yaml:"round_deadline"`
}

// PersistenceConfig selects and configures the durable backend.
type PersistenceConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver   string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// GateConfig configures internal/gate.
type GateConfig struct {
	DefaultCreditGrant int `yaml:"default_credit_grant"`
}

// TelemetryConfig configures internal/telemetry.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	PrometheusPath string `yaml:"prometheus_path"`
}

// ShutdownConfig configures internal/shutdown's Ed25519 verification.
type ShutdownConfig struct {
	// TrustedPublicKeyHex is the hex-encoded Ed25519 public key authorized
	// to sign emergency shutdown requests.
	TrustedPublicKeyHex string `yaml:"trusted_public_key_hex"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig configures internal/httpapi's bearer-token login. There is
// no OAuth/IdP integration in this deployment; AdminCredential is the
// shared secret an operator presents at /v1/auth/login to receive an
// admin-role session, matching the teacher's reliance on a single
// forwarded-identity header rather than a full auth stack.
type AuthConfig struct {
	AdminCredential string        `yaml:"admin_credential"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
}

// Default returns the baseline configuration before env/file/option
// overrides, mirroring the teacher's DefaultConfig.
func Default() *Config {
	return &Config{
		OccurrenceID: "default",
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Processor: ProcessorConfig{
			MaxConcurrent: 4,
			PollInterval:  200 * time.Millisecond,
			RoundDeadline: 30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Driver:     "sqlite",
			SQLitePath: "ciris.db",
		},
		Gate: GateConfig{
			DefaultCreditGrant: 100,
		},
		Telemetry: TelemetryConfig{
			PrometheusPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			AdminCredential: "ciris-admin",
			TokenTTL:        24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider: "mock",
		},
	}
}

// LoadFromEnv overrides c's fields from environment variables, field by
// field, matching the teacher's explicit (non-reflection) style.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CIRIS_OCCURRENCE_ID"); v != "" {
		c.OccurrenceID = v
	}
	if v := os.Getenv("CIRIS_HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := os.Getenv("CIRIS_HTTP_READ_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cerr.New("config.LoadFromEnv", cerr.KindValidation, "invalid CIRIS_HTTP_READ_TIMEOUT: "+v)
		}
		c.HTTP.ReadTimeout = d
	}
	if v := os.Getenv("CIRIS_HTTP_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cerr.New("config.LoadFromEnv", cerr.KindValidation, "invalid CIRIS_HTTP_WRITE_TIMEOUT: "+v)
		}
		c.HTTP.WriteTimeout = d
	}
	if v := os.Getenv("CIRIS_PROCESSOR_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cerr.New("config.LoadFromEnv", cerr.KindValidation, "invalid CIRIS_PROCESSOR_MAX_CONCURRENT: "+v)
		}
		c.Processor.MaxConcurrent = n
	}
	if v := os.Getenv("CIRIS_PROCESSOR_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cerr.New("config.LoadFromEnv", cerr.KindValidation, "invalid CIRIS_PROCESSOR_POLL_INTERVAL: "+v)
		}
		c.Processor.PollInterval = d
	}
	if v := os.Getenv("CIRIS_PERSISTENCE_DRIVER"); v != "" {
		c.Persistence.Driver = v
	}
	if v := os.Getenv("CIRIS_PERSISTENCE_SQLITE_PATH"); v != "" {
		c.Persistence.SQLitePath = v
	}
	if v := os.Getenv("CIRIS_PERSISTENCE_POSTGRES_DSN"); v != "" {
		c.Persistence.PostgresDSN = v
	}
	if v := os.Getenv("CIRIS_GATE_DEFAULT_CREDIT_GRANT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cerr.New("config.LoadFromEnv", cerr.KindValidation, "invalid CIRIS_GATE_DEFAULT_CREDIT_GRANT: "+v)
		}
		c.Gate.DefaultCreditGrant = n
	}
	if v := os.Getenv("CIRIS_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CIRIS_TELEMETRY_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("CIRIS_SHUTDOWN_TRUSTED_PUBLIC_KEY_HEX"); v != "" {
		c.Shutdown.TrustedPublicKeyHex = v
	}
	if v := os.Getenv("CIRIS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CIRIS_AUTH_ADMIN_CREDENTIAL"); v != "" {
		c.Auth.AdminCredential = v
	}
	if v := os.Getenv("CIRIS_AUTH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cerr.New("config.LoadFromEnv", cerr.KindValidation, "invalid CIRIS_AUTH_TOKEN_TTL: "+v)
		}
		c.Auth.TokenTTL = d
	}
	if v := os.Getenv("CIRIS_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("CIRIS_LLM_BEDROCK_REGION"); v != "" {
		c.LLM.BedrockRegion = v
	}
	if v := os.Getenv("CIRIS_LLM_BEDROCK_MODEL"); v != "" {
		c.LLM.BedrockModel = v
	}
	if v := os.Getenv("CIRIS_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CIRIS_AUDIT_SIGNING_KEY_SEED_HEX"); v != "" {
		c.Audit.SigningKeySeedHex = v
	}
	return nil
}

// LoadFromFile overrides c's fields from a YAML file. In Load, file
// settings override defaults and are in turn overridden by environment
// variables and then by functional options.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cerr.Wrap("config.LoadFromFile", cerr.KindValidation, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return cerr.Wrap("config.LoadFromFile", cerr.KindValidation, err)
	}
	return nil
}

// Validate checks invariants that must hold before the runtime starts.
func (c *Config) Validate() error {
	if c.OccurrenceID == "" {
		return cerr.New("config.Validate", cerr.KindValidation, "occurrence_id is required")
	}
	if c.Processor.MaxConcurrent < 1 {
		return cerr.New("config.Validate", cerr.KindValidation, fmt.Sprintf("invalid processor.max_concurrent: %d", c.Processor.MaxConcurrent))
	}
	switch c.Persistence.Driver {
	case "sqlite":
		if c.Persistence.SQLitePath == "" {
			return cerr.New("config.Validate", cerr.KindValidation, "persistence.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Persistence.PostgresDSN == "" {
			return cerr.New("config.Validate", cerr.KindValidation, "persistence.postgres_dsn is required for the postgres driver")
		}
	default:
		return cerr.New("config.Validate", cerr.KindValidation, "persistence.driver must be \"sqlite\" or \"postgres\", got "+c.Persistence.Driver)
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return cerr.New("config.Validate", cerr.KindValidation, "telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	if c.Auth.AdminCredential == "" {
		return cerr.New("config.Validate", cerr.KindValidation, "auth.admin_credential is required")
	}
	switch c.LLM.Provider {
	case "mock", "bedrock":
	default:
		return cerr.New("config.Validate", cerr.KindValidation, "llm.provider must be \"mock\" or \"bedrock\", got "+c.LLM.Provider)
	}
	return nil
}

// Option is a functional override applied after env/file loading.
type Option func(*Config)

// WithOccurrenceID overrides the occurrence id.
func WithOccurrenceID(id string) Option {
	return func(c *Config) { c.OccurrenceID = id }
}

// WithPersistenceDriver overrides the persistence backend selection.
func WithPersistenceDriver(driver string) Option {
	return func(c *Config) { c.Persistence.Driver = driver }
}

// Load builds a Config the way cmd/ciris does at startup: defaults,
// then an optional file, then environment variables, then options.
func Load(filePath string, opts ...Option) (*Config, error) {
	c := Default()
	if filePath != "" {
		if err := c.LoadFromFile(filePath); err != nil {
			return nil, err
		}
	}
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
