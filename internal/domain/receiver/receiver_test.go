package receiver

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/triad/internal/domain/channel"
	"github.com/GriffinCanCode/triad/internal/domain/escalation"
	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	helpers "github.com/GriffinCanCode/triad/tests/helpers/testutil"
)

var boot = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Timeout zero polls once, so an empty channel times out immediately
func testConfig() Config {
	return Config{
		Timeout:         0,
		Interval:        50 * time.Millisecond,
		AllocRetryDelay: 100 * time.Millisecond,
		Thresholds:      escalation.DefaultThresholds(),
	}
}

func newDeps(t *testing.T) (Deps, *helpers.FakeClock) {
	t.Helper()
	ch, err := channel.New[int32](10)
	require.NoError(t, err)
	heap, err := memory.NewHeap(1024)
	require.NoError(t, err)
	clk := helpers.NewFakeClock(boot)

	return Deps{
		Channel: ch,
		Health:  health.NewSignal(boot),
		Clock:   clk,
		Heap:    heap,
		Metrics: monitoring.NewMetrics(nil),
	}, clk
}

func TestNewValidates(t *testing.T) {
	deps, _ := newDeps(t)

	_, err := New(testConfig(), Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)

	cfg := testConfig()
	cfg.Thresholds = escalation.Thresholds{Warning: 5, Recovery: 3, Shutdown: 10}
	_, err = New(cfg, deps)
	assert.ErrorIs(t, err, escalation.ErrInvalidThresholds)
}

func TestThreeTimeoutsThenSuccess(t *testing.T) {
	deps, _ := newDeps(t)
	r, err := New(testConfig(), deps)
	require.NoError(t, err)
	ctx := context.Background()

	var seen []health.Flags
	for i := 0; i < 3; i++ {
		_, err := r.Step(ctx)
		require.NoError(t, err)
		seen = append(seen, deps.Health.Flags()&health.ReceiverStates)
	}

	require.True(t, deps.Channel.TrySend(42))
	state, err := r.Step(ctx)
	require.NoError(t, err)
	seen = append(seen, deps.Health.Flags()&health.ReceiverStates)

	assert.Equal(t, []health.Flags{
		health.ReceiverWarning,
		health.ReceiverWarning,
		health.ReceiverRecovery,
		health.ReceiverOk,
	}, seen)
	assert.Equal(t, escalation.State{Level: escalation.LevelNormal}, state)
}

func TestEscalationByTimeoutCount(t *testing.T) {
	tests := []struct {
		timeouts int
		level    escalation.Level
		flag     health.Flags
		clears   float64
	}{
		{1, escalation.LevelWarning, health.ReceiverWarning, 0},
		{2, escalation.LevelWarning, health.ReceiverWarning, 0},
		{3, escalation.LevelRecovery, health.ReceiverRecovery, 1},
		{4, escalation.LevelRecovery, health.ReceiverRecovery, 2},
		{5, escalation.LevelCriticalShutdown, health.ReceiverShutdown, 2},
		{9, escalation.LevelCriticalShutdown, health.ReceiverShutdown, 2},
		{10, escalation.LevelTerminated, health.ReceiverShutdown, 2},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			deps, _ := newDeps(t)
			r, err := New(testConfig(), deps)
			require.NoError(t, err)

			var state escalation.State
			for i := 0; i < tt.timeouts; i++ {
				state, err = r.Step(context.Background())
				require.NoError(t, err)
			}

			assert.Equal(t, tt.level, state.Level)
			assert.Equal(t, tt.timeouts, state.ConsecutiveTimeouts)
			assert.Equal(t, tt.flag, deps.Health.Flags()&health.ReceiverStates)
			assert.Equal(t, tt.clears, testutil.ToFloat64(deps.Metrics.ChannelClears))
		})
	}
}

func TestSuccessResetsFromAnyLevel(t *testing.T) {
	for _, timeouts := range []int{1, 3, 7} {
		deps, clk := newDeps(t)
		r, err := New(testConfig(), deps)
		require.NoError(t, err)

		for i := 0; i < timeouts; i++ {
			_, err := r.Step(context.Background())
			require.NoError(t, err)
		}

		clk.Advance(time.Second)
		deps.Channel.TrySend(7)
		state, err := r.Step(context.Background())
		require.NoError(t, err)

		assert.Equal(t, escalation.LevelNormal, state.Level)
		assert.Zero(t, state.ConsecutiveTimeouts)
		assert.Equal(t, health.ReceiverOk, deps.Health.Flags()&health.ReceiverStates)
		assert.Equal(t, clk.Now(), deps.Health.ReceiverHeartbeat())
	}
}

func TestDeliveredValuesReachOutputInOrder(t *testing.T) {
	deps, _ := newDeps(t)
	var out []int32
	deps.Output = func(v int32) { out = append(out, v) }

	r, err := New(testConfig(), deps)
	require.NoError(t, err)

	for _, v := range []int32{1, 2, 3} {
		deps.Channel.TrySend(v)
	}
	for i := 0; i < 3; i++ {
		_, err := r.Step(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []int32{1, 2, 3}, out)
	assert.Equal(t, int64(1024), deps.Heap.(*memory.Heap).FreeBytes(), "buffers are freed every iteration")
}

func TestRunTerminatesAfterShutdownThreshold(t *testing.T) {
	deps, _ := newDeps(t)
	wd := helpers.NewMockWatchdog(t)
	deps.Watchdog = wd

	r, err := New(testConfig(), deps)
	require.NoError(t, err)

	rt := scheduler.New(scheduler.Options{})
	h, err := rt.CreateTask(context.Background(), scheduler.TaskSpec{Name: TaskName, Entry: r.Run})
	require.NoError(t, err)
	<-h.Done()

	assert.ErrorIs(t, h.Err(), ErrTerminated)
	assert.Equal(t, escalation.LevelTerminated, r.State().Level)
	assert.Equal(t, health.ReceiverShutdown, deps.Health.Flags()&health.ReceiverStates)

	wd.AssertCalled(t, "Register", h.ID(), TaskName)
	wd.AssertNumberOfCalls(t, "Reset", 9)
	wd.AssertCalled(t, "Unregister", h.ID())

	// the terminated instance must not consume anything sent later
	deps.Channel.TrySend(1)
	assert.Equal(t, 1, deps.Channel.Len())
}

func TestAllocationFailureDoesNotEscalate(t *testing.T) {
	deps, clk := newDeps(t)
	heap, err := memory.NewHeap(valueSize)
	require.NoError(t, err)
	hog, err := heap.Alloc(valueSize)
	require.NoError(t, err)
	deps.Heap = heap

	wd := new(helpers.MockWatchdog)
	wd.On("Register", mock.Anything, TaskName).Return()
	wd.On("Unregister", mock.Anything).Return()
	deps.Watchdog = wd

	r, err := New(testConfig(), deps)
	require.NoError(t, err)

	state, err := r.Step(context.Background())
	assert.ErrorIs(t, err, memory.ErrAllocation)
	assert.Equal(t, escalation.State{}, state)

	ctx, cancel := clk.CancelAfter(context.Background(), 3)
	defer cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}, clk.Delays())
	assert.Equal(t, escalation.State{}, r.State())
	assert.Equal(t, 4.0, testutil.ToFloat64(deps.Metrics.AllocFailures))
	wd.AssertNotCalled(t, "Reset", mock.Anything)
	wd.AssertExpectations(t)

	hog.Free()
	deps.Channel.TrySend(5)
	state, err = r.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, escalation.LevelNormal, state.Level)
}

func TestStepHonorsCancellation(t *testing.T) {
	deps, _ := newDeps(t)
	cfg := testConfig()
	cfg.Timeout = time.Hour
	r, err := New(cfg, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, escalation.State{}, r.State())
}

func TestFactoryCreatesFreshMachine(t *testing.T) {
	deps, _ := newDeps(t)
	entry := Factory(testConfig(), deps)

	assert.ErrorIs(t, entry(context.Background()), ErrTerminated)
	assert.ErrorIs(t, entry(context.Background()), ErrTerminated)
	assert.Equal(t, 4.0, testutil.ToFloat64(deps.Metrics.ChannelClears), "each instance clears twice before terminating")
}
