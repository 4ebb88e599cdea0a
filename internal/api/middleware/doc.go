// Package middleware provides the gin middleware stack of the HTTP boundary.
//
// Middleware stack includes:
//   - Scope: one scoped context per request, initialized from the
//     propagation headers and disposed when the request unwinds
//   - CORS: cross-origin resource sharing that exposes the correlation headers
//   - RateLimit: token bucket limiting per tenant, falling back to client IP
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.Scope(runner, mapper))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
