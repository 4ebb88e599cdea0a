package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	GRPC        GRPCConfig
	Identity    IdentityConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Propagation PropagationConfig
	Registry    RegistryConfig
	Health      HealthConfig
	Outbound    OutboundConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" default:"50051"`
	Enabled bool   `envconfig:"GRPC_ENABLED" default:"true"`
}

// IdentityConfig names this process. Values must be kebab-case.
type IdentityConfig struct {
	NodeID      string `envconfig:"NODE_ID" default:"scopectx"`
	StudioID    string `envconfig:"STUDIO_ID" default:"local"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PropagationConfig controls how scope values cross transports.
type PropagationConfig struct {
	MaxHeaderValueLength   int    `envconfig:"SCOPE_MAX_HEADER_LENGTH" default:"256"`
	MaxBaggageEntries      int    `envconfig:"SCOPE_MAX_BAGGAGE_ENTRIES" default:"64"`
	BaggageHeaderPrefix    string `envconfig:"SCOPE_BAGGAGE_HEADER_PREFIX" default:"X-Baggage-"`
	MessagingBaggagePrefix string `envconfig:"SCOPE_MESSAGING_BAGGAGE_PREFIX" default:"baggage-"`
	IDFormat               string `envconfig:"SCOPE_ID_FORMAT" default:"ulid"`
	Sampled                bool   `envconfig:"TRACE_SAMPLED" default:"false"`
}

// RegistryConfig locates the node registry file (YAML or TOML).
type RegistryConfig struct {
	Path string `envconfig:"REGISTRY_PATH"`
}

// HealthConfig holds readiness probe configuration. A zero
// RefreshInterval disables the background refresh job.
type HealthConfig struct {
	ProbeTimeout    time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT" default:"2s"`
	RefreshInterval time.Duration `envconfig:"HEALTH_REFRESH_INTERVAL" default:"30s"`
}

// OutboundConfig holds settings for calls to other nodes.
type OutboundConfig struct {
	Timeout           time.Duration `envconfig:"OUTBOUND_TIMEOUT" default:"10s"`
	RetryMax          int           `envconfig:"OUTBOUND_RETRY_MAX" default:"2"`
	RequestsPerSecond float64       `envconfig:"OUTBOUND_RPS" default:"0"`
	Burst             int           `envconfig:"OUTBOUND_BURST" default:"50"`
	BreakerFailures   uint32        `envconfig:"OUTBOUND_BREAKER_FAILURES" default:"5"`
	BreakerTimeout    time.Duration `envconfig:"OUTBOUND_BREAKER_TIMEOUT" default:"30s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		GRPC: GRPCConfig{
			Port:    "50051",
			Enabled: true,
		},
		Identity: IdentityConfig{
			NodeID:      "scopectx",
			StudioID:    "local",
			Environment: "development",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Propagation: PropagationConfig{
			MaxHeaderValueLength:   256,
			MaxBaggageEntries:      64,
			BaggageHeaderPrefix:    "X-Baggage-",
			MessagingBaggagePrefix: "baggage-",
			IDFormat:               string(id.FormatULID),
		},
		Health: HealthConfig{
			ProbeTimeout:    2 * time.Second,
			RefreshInterval: 30 * time.Second,
		},
		Outbound: OutboundConfig{
			Timeout:         10 * time.Second,
			RetryMax:        2,
			Burst:           50,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
	}
}

// Validate checks values that envconfig cannot.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.ProcessIdentity(); err != nil {
		errs = append(errs, err)
	}
	if _, err := id.ParseFormat(c.Propagation.IDFormat); err != nil {
		errs = append(errs, err)
	}
	if c.Propagation.MaxHeaderValueLength <= 0 {
		errs = append(errs, fmt.Errorf("SCOPE_MAX_HEADER_LENGTH must be positive, got %d", c.Propagation.MaxHeaderValueLength))
	}
	if c.Propagation.BaggageHeaderPrefix == "" || c.Propagation.MessagingBaggagePrefix == "" {
		errs = append(errs, errors.New("baggage prefixes must not be empty"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be positive when rate limiting is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ProcessIdentity returns the validated identity of this process.
func (c *Config) ProcessIdentity() (identity.Identity, error) {
	return identity.New(c.Identity.NodeID, c.Identity.StudioID, c.Identity.Environment)
}

// IDGenerator returns the id generator selected by SCOPE_ID_FORMAT.
func (c *Config) IDGenerator() *id.Generator {
	format, err := id.ParseFormat(c.Propagation.IDFormat)
	if err != nil {
		format = id.FormatULID
	}
	return id.NewGeneratorWithFormat(format)
}
