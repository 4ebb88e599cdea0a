package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

var allKeys = []string{
	"PORT", "HOST", "SHUTDOWN_TIMEOUT", "CORS_ORIGINS", "GRPC_PORT", "GRPC_ENABLED",
	"NODE_ID", "STUDIO_ID", "ENVIRONMENT", "LOG_LEVEL", "LOG_DEV",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ENABLED",
	"SCOPE_MAX_HEADER_LENGTH", "SCOPE_MAX_BAGGAGE_ENTRIES", "SCOPE_BAGGAGE_HEADER_PREFIX",
	"SCOPE_MESSAGING_BAGGAGE_PREFIX", "SCOPE_ID_FORMAT", "TRACE_SAMPLED",
	"REGISTRY_PATH", "HEALTH_PROBE_TIMEOUT", "HEALTH_REFRESH_INTERVAL",
	"OUTBOUND_TIMEOUT", "OUTBOUND_RETRY_MAX", "OUTBOUND_RPS", "OUTBOUND_BURST",
	"OUTBOUND_BREAKER_FAILURES", "OUTBOUND_BREAKER_TIMEOUT",
}

// cleanEnv unsets every key the config reads; t.Setenv restores them afterwards.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "50051", cfg.GRPC.Port)
	assert.Equal(t, "scopectx", cfg.Identity.NodeID)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 256, cfg.Propagation.MaxHeaderValueLength)
	assert.Equal(t, "X-Baggage-", cfg.Propagation.BaggageHeaderPrefix)
	assert.Equal(t, "baggage-", cfg.Propagation.MessagingBaggagePrefix)
	assert.Equal(t, 2*time.Second, cfg.Health.ProbeTimeout)
	assert.Equal(t, 30*time.Second, cfg.Health.RefreshInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cleanEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	cleanEnv(t)
	envVars := map[string]string{
		"PORT":                           "9000",
		"HOST":                           "127.0.0.1",
		"SHUTDOWN_TIMEOUT":               "3s",
		"CORS_ORIGINS":                   "https://a.example,https://b.example",
		"GRPC_PORT":                      "6000",
		"GRPC_ENABLED":                   "false",
		"NODE_ID":                        "billing-api",
		"STUDIO_ID":                      "acme",
		"ENVIRONMENT":                    "prod",
		"LOG_LEVEL":                      "debug",
		"LOG_DEV":                        "true",
		"RATE_LIMIT_RPS":                 "500",
		"RATE_LIMIT_BURST":               "1000",
		"SCOPE_MAX_HEADER_LENGTH":        "128",
		"SCOPE_BAGGAGE_HEADER_PREFIX":    "Ctx-",
		"SCOPE_MESSAGING_BAGGAGE_PREFIX": "bag.",
		"SCOPE_ID_FORMAT":                "uuidv7",
		"TRACE_SAMPLED":                  "true",
		"REGISTRY_PATH":                  "/etc/scopectx/nodes.yaml",
		"HEALTH_PROBE_TIMEOUT":           "500ms",
		"OUTBOUND_RPS":                   "12.5",
		"OUTBOUND_BREAKER_FAILURES":      "3",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "6000", cfg.GRPC.Port)
	assert.False(t, cfg.GRPC.Enabled)
	assert.Equal(t, "billing-api", cfg.Identity.NodeID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 128, cfg.Propagation.MaxHeaderValueLength)
	assert.Equal(t, "Ctx-", cfg.Propagation.BaggageHeaderPrefix)
	assert.Equal(t, "bag.", cfg.Propagation.MessagingBaggagePrefix)
	assert.True(t, cfg.Propagation.Sampled)
	assert.Equal(t, "/etc/scopectx/nodes.yaml", cfg.Registry.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Health.ProbeTimeout)
	assert.Equal(t, 12.5, cfg.Outbound.RequestsPerSecond)
	assert.Equal(t, uint32(3), cfg.Outbound.BreakerFailures)
	assert.Equal(t, id.FormatUUIDv7, cfg.IDGenerator().Format())

	ident, err := cfg.ProcessIdentity()
	require.NoError(t, err)
	assert.Equal(t, "acme/prod/billing-api", ident.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric header length", "SCOPE_MAX_HEADER_LENGTH", "lots"},
		{"zero header length", "SCOPE_MAX_HEADER_LENGTH", "0"},
		{"unknown id format", "SCOPE_ID_FORMAT", "snowflake"},
		{"bad node id", "NODE_ID", "Billing API"},
		{"blank studio", "STUDIO_ID", " "},
		{"bad duration", "HEALTH_PROBE_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	cleanEnv(t)
	t.Setenv("SCOPE_ID_FORMAT", "snowflake")
	cfg := LoadOrDefault()
	assert.Equal(t, Default(), cfg)
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{"default values", "", "", "8000", "0.0.0.0"},
		{"custom port", "9000", "", "9000", "0.0.0.0"},
		{"custom host", "", "localhost", "8000", "localhost"},
		{"custom port and host", "3000", "127.0.0.1", "3000", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}
