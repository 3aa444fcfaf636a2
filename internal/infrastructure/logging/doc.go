// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON lines, one per status transition or snapshot
//   - Development: colored console output
//
// Every task logs through a named child logger so each line carries the task
// it came from:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Logging))
//	log := logger.Task("receiver")
//	log.Warn("Receive timeout", zap.Int("attempt", 1), zap.Int("of", 3))
//
// Call Flush before a device restart so the last lines reach the sink.
package logging
