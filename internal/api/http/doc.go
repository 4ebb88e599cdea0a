// Package http serves the scopectx HTTP API: liveness and readiness, the
// resolved request scope, the node registry, propagated calls to peers,
// client log ingestion and metrics.
package http
