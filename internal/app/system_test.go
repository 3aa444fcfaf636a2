package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/domain/supervisor"
	"github.com/GriffinCanCode/triad/internal/infrastructure/config"
	"github.com/GriffinCanCode/triad/internal/infrastructure/device"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	helpers "github.com/GriffinCanCode/triad/tests/helpers/testutil"
)

// fastConfig shrinks every period so a full supervision loop runs in
// milliseconds
func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Generator.Interval = config.Duration(5 * time.Millisecond)
	cfg.Receiver.Timeout = config.Duration(20 * time.Millisecond)
	cfg.Receiver.Interval = config.Duration(time.Millisecond)
	cfg.Receiver.AllocRetryDelay = config.Duration(time.Millisecond)
	cfg.Supervisor.Period = config.Duration(25 * time.Millisecond)
	cfg.Supervisor.RestartGrace = config.Duration(5 * time.Millisecond)
	cfg.Watchdog.Timeout = config.Duration(time.Second)
	cfg.Watchdog.CheckInterval = config.Duration(50 * time.Millisecond)
	return cfg
}

func stop(t *testing.T, sys *System) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Stop(ctx))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{Config: config.Default()})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestResourceCreationFailureRestartsDevice(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero channel capacity", func(c *config.Config) { c.Channel.Capacity = 0 }},
		{"zero heap", func(c *config.Config) { c.Memory.HeapBudget = 0 }},
		{"invalid watchdog", func(c *config.Config) { c.Watchdog.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig()
			tt.mutate(cfg)

			restarter := helpers.NewMockRestarter(t)
			restarter.On("Restart", ReasonResourceCreation).Once()

			_, err := New(Options{Config: cfg, Restarter: restarter})
			assert.ErrorIs(t, err, ErrResourceCreation)
			restarter.AssertExpectations(t)
		})
	}
}

func TestStackExhaustionFailsStartup(t *testing.T) {
	cfg := fastConfig()
	cfg.Memory.HeapBudget = int64(cfg.Generator.StackBudget) + 1

	metrics := monitoring.NewMetrics(nil)
	restarter := helpers.NewMockRestarter(t)
	restarter.On("Restart", ReasonResourceCreation).Once()

	sys, err := New(Options{Config: cfg, Restarter: restarter, Metrics: metrics})
	require.NoError(t, err)

	err = sys.Start(context.Background())
	assert.ErrorIs(t, err, ErrResourceCreation)
	restarter.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeviceRestarts.WithLabelValues(ReasonResourceCreation)))
	stop(t, sys)
}

type snapshotLog struct {
	count atomic.Int64
	last  atomic.Pointer[supervisor.Snapshot]
}

func (l *snapshotLog) Publish(s supervisor.Snapshot) {
	l.count.Add(1)
	l.last.Store(&s)
}

func TestHealthySystem(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	restarter := helpers.NewMockRestarter(t)
	sink := &snapshotLog{}

	var delivered atomic.Int64
	sys, err := New(Options{
		Config:    fastConfig(),
		Metrics:   metrics,
		Restarter: restarter,
		Sink:      sink,
		Output:    func(int32) { delivered.Add(1) },
	})
	require.NoError(t, err)
	require.NoError(t, sys.Start(context.Background()))
	assert.ErrorIs(t, sys.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		return sink.count.Load() >= 3 && delivered.Load() >= 10
	}, 5*time.Second, 10*time.Millisecond)

	snap := sink.last.Load()
	require.NotNil(t, snap)
	assert.Equal(t, sys.BootID(), snap.BootID)
	assert.Equal(t, health.GeneratorStatusOk, snap.Generator)
	assert.Equal(t, health.ReceiverStatusOk, snap.Receiver)
	assert.Equal(t, 0, snap.ReceiverRestarts)
	assert.Equal(t, 10, snap.ChannelCapacity)
	assert.Len(t, snap.Tasks, 3)

	latest, ok := sys.Supervisor().Latest()
	require.True(t, ok)
	assert.GreaterOrEqual(t, latest.Cycle, snap.Cycle)

	stats := sys.Channel().Stats()
	assert.Greater(t, stats.Received, uint64(0))
	assert.Less(t, sys.Heap().FreeBytes(), sys.Heap().Budget())

	stop(t, sys)
	assert.Empty(t, sys.Runtime().Tasks())
	assert.Equal(t, sys.Heap().Budget(), sys.Heap().FreeBytes())
	restarter.AssertNotCalled(t, "Restart", mock.Anything)
}

func TestCrashingReceiverRestartsDevice(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	latch := device.NewLatch(nil)

	sys, err := New(Options{
		Config:    fastConfig(),
		Metrics:   metrics,
		Restarter: latch,
		Output:    func(int32) { panic("sink fault") },
	})
	require.NoError(t, err)
	require.NoError(t, sys.Start(context.Background()))
	defer stop(t, sys)

	select {
	case <-latch.Requested():
	case <-time.After(10 * time.Second):
		t.Fatal("device restart was not requested")
	}

	assert.Equal(t, supervisor.ReasonRestartThreshold, latch.Reason())
	assert.Equal(t, 5, sys.Supervisor().RestartBudget().ConsecutiveRestarts)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeviceRestarts.WithLabelValues(supervisor.ReasonRestartThreshold)))
}

func TestWatchdogDisabled(t *testing.T) {
	cfg := fastConfig()
	cfg.Watchdog.Enabled = false

	sink := &snapshotLog{}
	sys, err := New(Options{Config: cfg, Restarter: device.FuncRestarter(func(string) {}), Sink: sink})
	require.NoError(t, err)
	require.NoError(t, sys.Start(context.Background()))

	require.Eventually(t, func() bool { return sink.count.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	stop(t, sys)
}
