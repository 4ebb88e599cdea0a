/*
Package monitoring provides Prometheus metrics for scope boundaries.

# Overview

Every Metrics value owns a private registry. Boundaries record HTTP
requests, tracked operations, job runs, messages, outbound calls and
lifecycle violations; the health aggregator records per-probe and
aggregate status.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
