package health

import (
	"strings"
	"sync/atomic"
	"time"
)

// Flags is a set of independent status bits
type Flags uint32

const (
	GeneratorOk Flags = 1 << iota
	ReceiverOk
	ReceiverWarning
	ReceiverRecovery
	ReceiverShutdown
)

// ReceiverStates groups the mutually exclusive receiver flags
const ReceiverStates = ReceiverOk | ReceiverWarning | ReceiverRecovery | ReceiverShutdown

// ReceiverFaults are the receiver flags cleared when the receiver is recreated
const ReceiverFaults = ReceiverWarning | ReceiverRecovery | ReceiverShutdown

var flagNames = []struct {
	flag Flags
	name string
}{
	{GeneratorOk, "generator_ok"},
	{ReceiverOk, "receiver_ok"},
	{ReceiverWarning, "receiver_warning"},
	{ReceiverRecovery, "receiver_recovery"},
	{ReceiverShutdown, "receiver_shutdown"},
}

// Has reports whether every bit in x is set
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

// String returns the set flags joined by '|', or "none"
func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Signal carries the status flags and heartbeats the supervisor reads.
// Every method is safe for concurrent use; each call is a single atomic
// operation, so two separate calls may be observed half-applied.
//
// Heartbeats are kept as offsets from the boot time, so times read back
// carry boot's monotonic reading and staleness ignores wall clock steps.
type Signal struct {
	epoch         time.Time
	flags         atomic.Uint32
	generatorBeat atomic.Int64
	receiverBeat  atomic.Int64
}

// NewSignal creates a signal with no flags set and both heartbeats stamped at boot
func NewSignal(boot time.Time) *Signal {
	s := &Signal{epoch: boot}
	s.StampGenerator(boot)
	s.StampReceiver(boot)
	return s
}

// Set asserts the given flags
func (s *Signal) Set(f Flags) {
	s.flags.Or(uint32(f))
}

// Clear deasserts the given flags
func (s *Signal) Clear(f Flags) {
	s.flags.And(^uint32(f))
}

// SetReceiverState asserts exactly one receiver state flag and clears the
// others in one update. Flags outside ReceiverStates are left untouched.
func (s *Signal) SetReceiverState(state Flags) {
	state &= ReceiverStates
	for {
		old := s.flags.Load()
		next := (old &^ uint32(ReceiverStates)) | uint32(state)
		if s.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// Flags returns the current flag set
func (s *Signal) Flags() Flags {
	return Flags(s.flags.Load())
}

// StampGenerator records a generator heartbeat
func (s *Signal) StampGenerator(t time.Time) {
	s.generatorBeat.Store(int64(t.Sub(s.epoch)))
}

// StampReceiver records a receiver heartbeat
func (s *Signal) StampReceiver(t time.Time) {
	s.receiverBeat.Store(int64(t.Sub(s.epoch)))
}

// GeneratorHeartbeat returns the last generator heartbeat
func (s *Signal) GeneratorHeartbeat() time.Time {
	return s.epoch.Add(time.Duration(s.generatorBeat.Load()))
}

// ReceiverHeartbeat returns the last receiver heartbeat
func (s *Signal) ReceiverHeartbeat() time.Time {
	return s.epoch.Add(time.Duration(s.receiverBeat.Load()))
}

// Snapshot is a point-in-time read of a Signal
type Snapshot struct {
	Flags              Flags
	GeneratorHeartbeat time.Time
	ReceiverHeartbeat  time.Time
}

// Snapshot reads flags and heartbeats. The three loads are independent.
func (s *Signal) Snapshot() Snapshot {
	return Snapshot{
		Flags:              s.Flags(),
		GeneratorHeartbeat: s.GeneratorHeartbeat(),
		ReceiverHeartbeat:  s.ReceiverHeartbeat(),
	}
}
