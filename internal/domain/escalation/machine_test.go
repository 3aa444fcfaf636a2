package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForCounts(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		count int
		want  Level
	}{
		{0, LevelNormal},
		{1, LevelWarning},
		{2, LevelWarning},
		{3, LevelRecovery},
		{4, LevelRecovery},
		{5, LevelCriticalShutdown},
		{9, LevelCriticalShutdown},
		{10, LevelTerminated},
		{25, LevelTerminated},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, th.LevelFor(tt.count), "count %d", tt.count)
	}
}

func TestNextTimeoutSequence(t *testing.T) {
	th := DefaultThresholds()
	s := State{}

	want := []Level{
		LevelWarning, LevelWarning,
		LevelRecovery, LevelRecovery,
		LevelCriticalShutdown, LevelCriticalShutdown, LevelCriticalShutdown, LevelCriticalShutdown, LevelCriticalShutdown,
		LevelTerminated,
	}
	for i, level := range want {
		s = Next(s, EventTimeout, th)
		assert.Equal(t, level, s.Level, "timeout %d", i+1)
		assert.Equal(t, i+1, s.ConsecutiveTimeouts)
	}
}

func TestNextReceivedResetsFromAnyLiveLevel(t *testing.T) {
	th := DefaultThresholds()

	for _, count := range []int{0, 1, 3, 5, 9} {
		s := State{Level: th.LevelFor(count), ConsecutiveTimeouts: count}
		next := Next(s, EventReceived, th)
		assert.Equal(t, State{Level: LevelNormal}, next, "count %d", count)
	}
}

func TestTerminatedIsAbsorbing(t *testing.T) {
	th := DefaultThresholds()
	s := State{Level: LevelTerminated, ConsecutiveTimeouts: 10}

	assert.Equal(t, s, Next(s, EventReceived, th))
	assert.Equal(t, s, Next(s, EventTimeout, th))
}

func TestActions(t *testing.T) {
	assert.Equal(t, ActionNone, LevelNormal.Action())
	assert.Equal(t, ActionNone, LevelWarning.Action())
	assert.Equal(t, ActionClearChannel, LevelRecovery.Action())
	assert.Equal(t, ActionNone, LevelCriticalShutdown.Action())
	assert.Equal(t, ActionTerminate, LevelTerminated.Action())
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	invalid := []Thresholds{
		{Warning: 1, Recovery: 5, Shutdown: 10},
		{Warning: 3, Recovery: 3, Shutdown: 10},
		{Warning: 3, Recovery: 5, Shutdown: 5},
		{},
	}
	for _, th := range invalid {
		assert.ErrorIs(t, th.Validate(), ErrInvalidThresholds)
	}
}

func TestAttempt(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		count int
		n, of int
	}{
		{1, 1, 2},
		{2, 2, 2},
		{3, 1, 2},
		{4, 2, 2},
		{5, 1, 5},
		{9, 5, 5},
	}
	for _, tt := range tests {
		s := State{Level: th.LevelFor(tt.count), ConsecutiveTimeouts: tt.count}
		n, of := s.Attempt(th)
		assert.Equal(t, tt.n, n, "count %d", tt.count)
		assert.Equal(t, tt.of, of, "count %d", tt.count)
	}
}

func TestMachineTransitions(t *testing.T) {
	type transition struct{ from, to Level }
	var seen []transition

	m := NewMachine(DefaultThresholds(), func(from, to State, e Event) {
		seen = append(seen, transition{from.Level, to.Level})
	})

	m.Fire(EventTimeout)
	m.Fire(EventTimeout)
	m.Fire(EventTimeout)
	state := m.Fire(EventReceived)

	assert.Equal(t, State{Level: LevelNormal}, state)
	assert.Equal(t, []transition{
		{LevelNormal, LevelWarning},
		{LevelWarning, LevelRecovery},
		{LevelRecovery, LevelNormal},
	}, seen)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "critical", LevelCriticalShutdown.String())
	assert.Equal(t, "unknown", Level(42).String())
	assert.Equal(t, "timeout", EventTimeout.String())
}
