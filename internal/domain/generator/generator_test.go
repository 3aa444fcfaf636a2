package generator

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/triad/internal/domain/channel"
	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	helpers "github.com/GriffinCanCode/triad/tests/helpers/testutil"
)

var boot = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newDeps(t *testing.T, capacity int) (Deps, *helpers.FakeClock) {
	t.Helper()
	ch, err := channel.New[int32](capacity)
	require.NoError(t, err)
	clk := helpers.NewFakeClock(boot)

	return Deps{
		Channel: ch,
		Health:  health.NewSignal(boot),
		Clock:   clk,
	}, clk
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestStepDropsNewestWhenFull(t *testing.T) {
	deps, clk := newDeps(t, 2)
	gen, err := New(Config{Interval: 200 * time.Millisecond}, deps)
	require.NoError(t, err)

	v, ok := gen.Step()
	assert.Equal(t, int32(1), v)
	assert.True(t, ok)

	clk.Advance(200 * time.Millisecond)
	v, ok = gen.Step()
	assert.Equal(t, int32(2), v)
	assert.True(t, ok)
	stamped := clk.Now()

	clk.Advance(200 * time.Millisecond)
	v, ok = gen.Step()
	assert.Equal(t, int32(3), v)
	assert.False(t, ok)

	assert.Equal(t, []int32{1, 2}, deps.Channel.Items())
	assert.True(t, deps.Health.Flags().Has(health.GeneratorOk))
	assert.Equal(t, stamped, deps.Health.GeneratorHeartbeat(), "a dropped value must not stamp the heartbeat")
}

func TestSustainedBackpressureKeepsGeneratorOk(t *testing.T) {
	deps, clk := newDeps(t, 1)
	gen, err := New(Config{}, deps)
	require.NoError(t, err)

	_, ok := gen.Step()
	require.True(t, ok)

	for i := 0; i < 50; i++ {
		clk.Advance(time.Second)
		_, ok := gen.Step()
		assert.False(t, ok)
	}

	assert.True(t, deps.Health.Flags().Has(health.GeneratorOk))
	assert.True(t, health.IsStale(deps.Health.GeneratorHeartbeat(), clk.Now(), 3*time.Second))
}

func TestDropWarningsAreRateLimited(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	deps, _ := newDeps(t, 1)
	deps.Logger = zap.New(core)

	gen, err := New(Config{DropLogRate: 0.001, DropLogBurst: 1}, deps)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		gen.Step()
	}

	warnings := logs.FilterMessage("Channel full, value dropped")
	require.Equal(t, 1, warnings.Len())
	assert.Equal(t, int32(2), warnings.All()[0].ContextMap()["value"])
}

func TestDropWarningsDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	deps, _ := newDeps(t, 1)
	deps.Logger = zap.New(core)

	gen, err := New(Config{}, deps)
	require.NoError(t, err)
	gen.Step()
	gen.Step()

	assert.Zero(t, logs.Len())
}

func TestStepRecordsMetrics(t *testing.T) {
	deps, _ := newDeps(t, 1)
	deps.Metrics = monitoring.NewMetrics(nil)

	gen, err := New(Config{}, deps)
	require.NoError(t, err)
	gen.Step()
	gen.Step()

	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.ChannelSends.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.ChannelSends.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.ChannelDepth))
}

func TestRunFeedsWatchdogEveryIteration(t *testing.T) {
	deps, clk := newDeps(t, 10)
	wd := helpers.NewMockWatchdog(t)
	deps.Watchdog = wd

	gen, err := New(Config{Interval: 200 * time.Millisecond}, deps)
	require.NoError(t, err)

	rt := scheduler.New(scheduler.Options{})
	ctx, cancel := clk.CancelAfter(context.Background(), 3)
	defer cancel()

	h, err := rt.CreateTask(ctx, scheduler.TaskSpec{Name: TaskName, Entry: gen.Run})
	require.NoError(t, err)
	<-h.Done()

	assert.ErrorIs(t, h.Err(), context.Canceled)
	assert.Equal(t, int32(3), gen.Value())
	assert.Equal(t, []int32{1, 2, 3}, deps.Channel.Items())
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond}, clk.Delays())

	wd.AssertCalled(t, "Register", h.ID(), TaskName)
	wd.AssertNumberOfCalls(t, "Reset", 3)
	wd.AssertCalled(t, "Unregister", h.ID())
}

func TestFactoryStartsEachInstanceAtOne(t *testing.T) {
	deps, clk := newDeps(t, 10)
	entry := Factory(Config{}, deps)

	for i := 0; i < 2; i++ {
		ctx, cancel := clk.CancelAfter(context.Background(), 2*(i+1))
		assert.ErrorIs(t, entry(ctx), context.Canceled)
		cancel()
	}

	assert.Equal(t, []int32{1, 2, 1, 2}, deps.Channel.Items())
}

func TestRunWatchdogResetFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	deps, clk := newDeps(t, 10)
	deps.Logger = zap.New(core)

	wd := new(helpers.MockWatchdog)
	wd.On("Register", mock.Anything, TaskName).Return()
	wd.On("Reset", mock.Anything).Return(assert.AnError)
	wd.On("Unregister", mock.Anything).Return()
	deps.Watchdog = wd

	gen, err := New(Config{}, deps)
	require.NoError(t, err)

	ctx, cancel := clk.CancelAfter(context.Background(), 1)
	defer cancel()
	assert.ErrorIs(t, gen.Run(ctx), context.Canceled)

	assert.Equal(t, 1, logs.FilterMessage("Watchdog reset failed").Len())
	wd.AssertExpectations(t)
}
