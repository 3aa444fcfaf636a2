// Package generator implements the producer task.
//
// Every Interval the generator increments its counter and offers the value
// to the bounded channel without blocking. A successful send sets
// GeneratorOk and stamps the generator heartbeat. A full channel drops the
// value and logs a rate-limited warning but leaves health untouched, so
// sustained backpressure shows up to the supervisor as a stale heartbeat.
package generator
