// Package watchdog implements the task watchdog.
//
// Generator and receiver register on start and call Reset every iteration.
// When a registered task stays silent longer than Timeout the watchdog
// reports it through the expiry callback, which the application wires to a
// device restart. It runs on its own goroutine, independent of the
// supervisor's heartbeat checks, so it keeps firing if the supervisor stalls.
package watchdog
