// Package server provides the optional diagnostics HTTP server.
//
// Every endpoint is read-only:
//   - GET /health: 200 while both workers report healthy, 503 otherwise
//   - GET /status: latest supervision snapshot, restart budget and totals
//   - GET /tasks: live task instances
//   - GET /metrics: Prometheus exposition
//   - GET /stream: WebSocket feed of snapshots
//
// Example Usage:
//
//	srv, err := server.New(server.Options{Config: cfg.Diagnostics, Status: sup, Tasks: rt})
//	go srv.Start(ctx)
package server
