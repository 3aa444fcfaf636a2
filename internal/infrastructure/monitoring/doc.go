/*
Package monitoring provides Prometheus metrics for the triad.

# Overview

Metrics live on their own registry so a boot, or a test, never collides with
another instance. Tasks record through nil-safe helpers, so a task built
without metrics simply records nothing.

# Metrics

  - Channel: depth, capacity, sends by result, receives by result, clears
  - Receiver: escalation level and transitions, allocation failures
  - Supervisor: heartbeat ages, task restarts, receiver restart count,
    device restarts, cycle count and duration, low-memory alerts
  - System: heap free and minimum free, host free memory, live tasks,
    watchdog expirations, uptime
  - Diagnostics: HTTP requests and status stream connections

# Usage

	metrics := monitoring.NewMetrics(nil)
	metrics.RecordSend(true, ch.Len())

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
