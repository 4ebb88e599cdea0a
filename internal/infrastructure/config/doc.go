// Package config provides 12-factor configuration for the scope service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP listener, shutdown timeout, CORS origins
//   - GRPC: gRPC listener
//   - Identity: node, studio and environment of this process
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - Propagation: header bounds, baggage prefixes, id format
//   - Registry: node registry file
//   - Health: readiness probe timeout
//   - Outbound: retries, rate limit and circuit breaker for calls to other nodes
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	ident, _ := cfg.ProcessIdentity()
package config
