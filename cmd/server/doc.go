// Package main is the entry point for the scopectx server.
//
// The server accepts work over HTTP, gRPC and websockets, runs scheduled
// jobs, and gives every unit of work a scoped context whose correlation,
// causation and tenant ids follow it onto outbound calls.
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Serve with the environment configuration
//	./scopectx
//
//	# Override ports and load a node registry
//	./scopectx --port 8080 --grpc-port 9090 --registry nodes.yaml
//
//	# Development mode (console logs, debug level)
//	./scopectx --dev --log-level debug
//
//	# Validate a registry file
//	./scopectx registry nodes.toml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
