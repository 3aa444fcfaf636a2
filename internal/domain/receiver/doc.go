// Package receiver implements the consumer task and its escalation policy.
//
// Each iteration allocates a small buffer from the device heap, waits up to
// Timeout for a value and feeds the outcome to an escalation.Machine:
//
//	timeouts   level      action
//	1..W-1     warning    flag only
//	W..R-1     recovery   clear the channel
//	R..S-1     critical   flag only
//	S          terminated task exits
//
// Any delivered value returns the machine to Normal and sets ReceiverOk as
// the only receiver flag. A failed allocation skips the iteration without
// touching the machine or the watchdog.
package receiver
