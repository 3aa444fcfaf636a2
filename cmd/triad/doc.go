// Package main runs the producer, consumer and supervisor triad.
//
// The process plays the device: a requested device restart flushes the logs
// and exits with the configured restart exit code (75 by default) so the
// process manager starts a fresh instance.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - A yaml, toml or json file via -config or TRIAD_CONFIG_FILE
//
// Usage:
//
//	# Device defaults, JSON logs
//	./triad
//
//	# Development logging with the diagnostics server on 127.0.0.1:9090
//	./triad -dev -diagnostics
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, exit code 0
package main
