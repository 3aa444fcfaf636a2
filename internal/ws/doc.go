// Package ws streams supervisor status snapshots over WebSocket.
//
// The Hub is the supervisor's SnapshotSink. Every published snapshot is
// encoded once and offered to each subscriber's bounded queue; a slow client
// loses the newest snapshot rather than holding up the supervision cycle.
//
// Message Types (Server → Client):
//   - system: connection established
//   - status: one supervision cycle snapshot in "data"
//
// Example Usage:
//
//	hub := ws.NewHub(logger, metrics, ws.DefaultBuffer)
//	router.GET("/stream", hub.HandleConnection)
package ws
