package resilience

import (
	"errors"
	"sync"
)

var ErrBudgetExhausted = errors.New("restart budget exhausted")

// State represents the restart budget state
type State int

const (
	StateArmed State = iota
	StateExhausted
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Settings configures the restart budget behavior
type Settings struct {
	// MaxRestarts is the consecutive restart count that exhausts the budget
	MaxRestarts int
	// RecoveryCycles is the number of consecutive healthy observations that
	// forgive prior restarts. Zero never forgives.
	RecoveryCycles int
	// OnExhausted is called once when the budget becomes exhausted
	OnExhausted func(name string, counts Counts)
}

// Counts holds the statistics for the restart budget
type Counts struct {
	ConsecutiveRestarts int `json:"consecutive_restarts"`
	TotalRestarts       int `json:"total_restarts"`
	HealthyCycles       int `json:"healthy_cycles"`
}

// Budget counts consecutive restarts of one task and trips once they reach
// MaxRestarts. Once exhausted it stays exhausted until Reset.
type Budget struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
}

// New creates a new restart budget with the given settings
func New(name string, settings Settings) *Budget {
	if settings.MaxRestarts <= 0 {
		settings.MaxRestarts = 5
	}
	if settings.RecoveryCycles < 0 {
		settings.RecoveryCycles = 0
	}

	return &Budget{
		name:     name,
		settings: settings,
		state:    StateArmed,
	}
}

// Name returns the name of the budget
func (b *Budget) Name() string {
	return b.name
}

// State returns the current state of the budget
func (b *Budget) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a copy of the internal counts
func (b *Budget) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// RecordRestart charges one restart. It returns ErrBudgetExhausted when this
// restart, or an earlier one, used up the budget.
func (b *Budget) RecordRestart() error {
	b.mu.Lock()

	b.counts.ConsecutiveRestarts++
	b.counts.TotalRestarts++
	b.counts.HealthyCycles = 0

	if b.state == StateExhausted {
		b.mu.Unlock()
		return ErrBudgetExhausted
	}
	if b.counts.ConsecutiveRestarts < b.settings.MaxRestarts {
		b.mu.Unlock()
		return nil
	}

	b.state = StateExhausted
	counts := b.counts
	b.mu.Unlock()

	if b.settings.OnExhausted != nil {
		b.settings.OnExhausted(b.name, counts)
	}
	return ErrBudgetExhausted
}

// RecordHealthy notes one healthy observation of the task
func (b *Budget) RecordHealthy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateExhausted {
		return
	}

	b.counts.HealthyCycles++
	if b.settings.RecoveryCycles > 0 && b.counts.HealthyCycles >= b.settings.RecoveryCycles {
		b.counts.ConsecutiveRestarts = 0
	}
}

// Reset re-arms the budget and clears consecutive counts
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateArmed
	b.counts.ConsecutiveRestarts = 0
	b.counts.HealthyCycles = 0
}
