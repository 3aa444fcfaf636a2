package generator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/triad/internal/domain/channel"
	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// TaskName is the scheduler name of the generator task
const TaskName = "generator"

var ErrMissingDependency = errors.New("generator: missing dependency")

// Clock is the part of the scheduler the task loop needs
type Clock interface {
	Now() time.Time
	Delay(ctx context.Context, d time.Duration) error
}

// Watchdog is the task watchdog contract
type Watchdog interface {
	Register(taskID id.TaskID, name string)
	Reset(taskID id.TaskID) error
	Unregister(taskID id.TaskID)
}

// Config holds generator timing
type Config struct {
	Interval time.Duration
	// DropLogRate limits "channel full" warnings per second; zero disables them
	DropLogRate  float64
	DropLogBurst int
}

// Deps are the collaborators a generator instance uses
type Deps struct {
	Channel  *channel.Bounded[int32]
	Health   *health.Signal
	Clock    Clock
	Watchdog Watchdog
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// Generator produces sequential values into the channel. Each instance
// counts from 1.
type Generator struct {
	cfg  Config
	deps Deps

	value      int32
	dropLog    *rate.Limiter
	suppressed int
}

// New creates a generator instance
func New(cfg Config, deps Deps) (*Generator, error) {
	if deps.Channel == nil || deps.Health == nil || deps.Clock == nil {
		return nil, ErrMissingDependency
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	burst := cfg.DropLogBurst
	if burst <= 0 {
		burst = 1
	}

	return &Generator{
		cfg:     cfg,
		deps:    deps,
		dropLog: rate.NewLimiter(rate.Limit(cfg.DropLogRate), burst),
	}, nil
}

// Step produces the next value and tries to send it. A full channel drops
// the value; GeneratorOk and the heartbeat are only touched on success.
func (g *Generator) Step() (value int32, sent bool) {
	g.value++
	value = g.value

	sent = g.deps.Channel.TrySend(value)
	g.deps.Metrics.RecordSend(sent, g.deps.Channel.Len())

	if sent {
		g.deps.Health.Set(health.GeneratorOk)
		g.deps.Health.StampGenerator(g.deps.Clock.Now())
		g.deps.Logger.Debug("Value generated and sent", zap.Int32("value", value))
		return value, true
	}

	if g.cfg.DropLogRate > 0 && g.dropLog.Allow() {
		g.deps.Logger.Warn("Channel full, value dropped",
			zap.Int32("value", value),
			zap.Error(channel.ErrFull),
			zap.Int("suppressed", g.suppressed))
		g.suppressed = 0
	} else {
		g.suppressed++
	}
	return value, false
}

// Value returns the last value produced
func (g *Generator) Value() int32 {
	return g.value
}

// Run is the task entry. It loops until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	wd := g.deps.Watchdog
	taskID, _ := scheduler.TaskIDFrom(ctx)
	if wd != nil {
		wd.Register(taskID, TaskName)
		defer wd.Unregister(taskID)
	}

	g.deps.Logger.Info("Generator started", zap.String("id", taskID.String()))

	for {
		g.Step()

		if wd != nil {
			if err := wd.Reset(taskID); err != nil {
				g.deps.Logger.Warn("Watchdog reset failed", zap.Error(err))
			}
		}

		if err := g.deps.Clock.Delay(ctx, g.cfg.Interval); err != nil {
			return err
		}
	}
}

// Factory returns an Entry that builds a fresh generator per task instance
func Factory(cfg Config, deps Deps) scheduler.Entry {
	return func(ctx context.Context) error {
		g, err := New(cfg, deps)
		if err != nil {
			return err
		}
		return g.Run(ctx)
	}
}
