// Package middleware provides the HTTP middleware of the diagnostics server.
//
//   - CORS: read-only cross-origin access, WebSocket upgrades included
//   - RateLimit: per-IP token bucket, idle clients evicted
//   - GlobalRateLimit: one bucket shared by every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
