package escalation

import (
	"errors"
	"fmt"
)

var ErrInvalidThresholds = errors.New("invalid escalation thresholds")

// Level is the receiver escalation severity
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelRecovery
	LevelCriticalShutdown
	LevelTerminated
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelRecovery:
		return "recovery"
	case LevelCriticalShutdown:
		return "critical"
	case LevelTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Action is the corrective step a level asks of the receiver
type Action int

const (
	ActionNone Action = iota
	ActionClearChannel
	ActionTerminate
)

// Action returns the corrective step for the level
func (l Level) Action() Action {
	switch l {
	case LevelRecovery:
		return ActionClearChannel
	case LevelTerminated:
		return ActionTerminate
	default:
		return ActionNone
	}
}

// Event drives the machine
type Event int

const (
	EventReceived Event = iota
	EventTimeout
)

// String returns the string representation of the event
func (e Event) String() string {
	if e == EventReceived {
		return "received"
	}
	return "timeout"
}

// Thresholds bound the level ranges over the consecutive-timeout count:
// Warning [1, Warning), Recovery [Warning, Recovery),
// CriticalShutdown [Recovery, Shutdown), Terminated [Shutdown, ∞).
type Thresholds struct {
	// Warning is the first count past the warning range
	Warning int
	// Recovery is the first count past the recovery range
	Recovery int
	// Shutdown is the count at which the receiver terminates
	Shutdown int
}

// DefaultThresholds returns the device thresholds 3/5/10
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:  3,
		Recovery: 5,
		Shutdown: 10,
	}
}

// Validate checks that 1 < Warning < Recovery < Shutdown
func (t Thresholds) Validate() error {
	if t.Warning <= 1 || t.Recovery <= t.Warning || t.Shutdown <= t.Recovery {
		return fmt.Errorf("%w: warning=%d recovery=%d shutdown=%d",
			ErrInvalidThresholds, t.Warning, t.Recovery, t.Shutdown)
	}
	return nil
}

// LevelFor maps a consecutive-timeout count to a level
func (t Thresholds) LevelFor(count int) Level {
	switch {
	case count <= 0:
		return LevelNormal
	case count < t.Warning:
		return LevelWarning
	case count < t.Recovery:
		return LevelRecovery
	case count < t.Shutdown:
		return LevelCriticalShutdown
	default:
		return LevelTerminated
	}
}

// State is one receiver instance's position in the machine
type State struct {
	Level               Level
	ConsecutiveTimeouts int
}

// Next is the pure transition function. A successful receive returns to
// Normal from any live level; Terminated absorbs every event.
func Next(s State, e Event, t Thresholds) State {
	if s.Level == LevelTerminated {
		return s
	}

	switch e {
	case EventReceived:
		return State{Level: LevelNormal}
	case EventTimeout:
		count := s.ConsecutiveTimeouts + 1
		return State{Level: t.LevelFor(count), ConsecutiveTimeouts: count}
	default:
		return s
	}
}

// Attempt returns the position of the state inside its level and the width
// of that level, e.g. the second recovery pass of two is (2, 2).
func (s State) Attempt(t Thresholds) (n, of int) {
	c := s.ConsecutiveTimeouts
	switch s.Level {
	case LevelWarning:
		return c, t.Warning - 1
	case LevelRecovery:
		return c - t.Warning + 1, t.Recovery - t.Warning
	case LevelCriticalShutdown:
		return c - t.Recovery + 1, t.Shutdown - t.Recovery
	case LevelTerminated:
		return 1, 1
	default:
		return 0, 0
	}
}

// Machine wraps Next for a single receiver instance. It is not safe for
// concurrent use.
type Machine struct {
	thresholds   Thresholds
	state        State
	onTransition func(from, to State, e Event)
}

// NewMachine creates a machine in the Normal state
func NewMachine(t Thresholds, onTransition func(from, to State, e Event)) *Machine {
	return &Machine{
		thresholds:   t,
		onTransition: onTransition,
	}
}

// Fire applies an event and returns the new state
func (m *Machine) Fire(e Event) State {
	from := m.state
	m.state = Next(from, e, m.thresholds)
	if m.onTransition != nil && from.Level != m.state.Level {
		m.onTransition(from, m.state, e)
	}
	return m.state
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Thresholds returns the machine thresholds
func (m *Machine) Thresholds() Thresholds {
	return m.thresholds
}
