package health

import "time"

// StalenessMultiplier is how many supervision periods a heartbeat may age
// before its task is presumed dead
const StalenessMultiplier = 2

// IsStale reports whether a heartbeat last stamped at last is older than
// StalenessMultiplier periods at now
func IsStale(last, now time.Time, period time.Duration) bool {
	return now.Sub(last) > StalenessMultiplier*period
}

// ReceiverStatus is the receiver condition derived from the flags
type ReceiverStatus string

const (
	ReceiverStatusOk       ReceiverStatus = "ok"
	ReceiverStatusWarning  ReceiverStatus = "warning"
	ReceiverStatusRecovery ReceiverStatus = "recovery"
	ReceiverStatusCritical ReceiverStatus = "critical"
	ReceiverStatusUnknown  ReceiverStatus = "unknown"
)

// DeriveReceiverStatus maps flags to a receiver status. When more than one
// receiver flag is observed, the healthiest wins.
func DeriveReceiverStatus(f Flags) ReceiverStatus {
	switch {
	case f.Has(ReceiverOk):
		return ReceiverStatusOk
	case f.Has(ReceiverWarning):
		return ReceiverStatusWarning
	case f.Has(ReceiverRecovery):
		return ReceiverStatusRecovery
	case f.Has(ReceiverShutdown):
		return ReceiverStatusCritical
	default:
		return ReceiverStatusUnknown
	}
}

// GeneratorStatus is the generator condition derived from the flags
type GeneratorStatus string

const (
	GeneratorStatusOk   GeneratorStatus = "ok"
	GeneratorStatusFail GeneratorStatus = "fail"
)

// DeriveGeneratorStatus maps flags to a generator status
func DeriveGeneratorStatus(f Flags) GeneratorStatus {
	if f.Has(GeneratorOk) {
		return GeneratorStatusOk
	}
	return GeneratorStatusFail
}
