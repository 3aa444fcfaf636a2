package receiver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/domain/channel"
	"github.com/GriffinCanCode/triad/internal/domain/escalation"
	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// TaskName is the scheduler name of the receiver task
const TaskName = "receiver"

// valueSize is the per-iteration allocation, one int32
const valueSize = 4

var (
	ErrMissingDependency = errors.New("receiver: missing dependency")
	// ErrTerminated is returned by Run when the escalation machine reaches
	// its terminal level. Only a new instance can receive again.
	ErrTerminated = errors.New("receiver terminated after persistent timeouts")
)

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

// Allocator hands out the per-iteration buffer
type Allocator interface {
	Alloc(size int) (*memory.Block, error)
}

// Config holds receiver timing and escalation thresholds
type Config struct {
	Timeout         time.Duration
	Interval        time.Duration
	AllocRetryDelay time.Duration
	Thresholds      escalation.Thresholds
}

// Deps are the collaborators a receiver instance uses
type Deps struct {
	Channel  *channel.Bounded[int32]
	Health   *health.Signal
	Clock    Clock
	Heap     Allocator
	Watchdog Watchdog
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
	// Output receives every delivered value; nil only logs it
	Output func(value int32)
}

// Receiver consumes values and escalates on consecutive receive timeouts
type Receiver struct {
	cfg     Config
	deps    Deps
	machine *escalation.Machine
}

// New creates a receiver instance in the Normal level
func New(cfg Config, deps Deps) (*Receiver, error) {
	if deps.Channel == nil || deps.Health == nil || deps.Clock == nil || deps.Heap == nil {
		return nil, ErrMissingDependency
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := &Receiver{cfg: cfg, deps: deps}
	r.machine = escalation.NewMachine(cfg.Thresholds, r.onTransition)
	return r, nil
}

func (r *Receiver) onTransition(from, to escalation.State, e escalation.Event) {
	r.deps.Metrics.RecordEscalation(from.Level.String(), to.Level.String(), int(to.Level))
	r.deps.Logger.Debug("Escalation level changed",
		zap.Stringer("from", from.Level),
		zap.Stringer("to", to.Level),
		zap.Stringer("event", e))
}

// State returns the escalation state
func (r *Receiver) State() escalation.State {
	return r.machine.State()
}

// Step runs one receive iteration. An allocation failure aborts the
// iteration before receiving and leaves the escalation state untouched; the
// returned error then wraps memory.ErrAllocation.
func (r *Receiver) Step(ctx context.Context) (escalation.State, error) {
	block, err := r.deps.Heap.Alloc(valueSize)
	if err != nil {
		r.deps.Metrics.IncAllocFailures()
		r.deps.Logger.Error("Buffer allocation failed", zap.Error(err))
		return r.machine.State(), fmt.Errorf("receiver buffer: %w", err)
	}
	defer block.Free()

	value, err := r.deps.Channel.Receive(ctx, r.cfg.Timeout)
	switch {
	case err == nil:
		r.deps.Metrics.RecordReceive(true, r.deps.Channel.Len())
		binary.LittleEndian.PutUint32(block.Bytes(), uint32(value))
		return r.delivered(int32(binary.LittleEndian.Uint32(block.Bytes()))), nil
	case errors.Is(err, channel.ErrTimeout):
		r.deps.Metrics.RecordReceive(false, r.deps.Channel.Len())
		return r.timedOut(), nil
	default:
		return r.machine.State(), err
	}
}

func (r *Receiver) delivered(value int32) escalation.State {
	state := r.machine.Fire(escalation.EventReceived)

	r.deps.Health.SetReceiverState(health.ReceiverOk)
	r.deps.Health.StampReceiver(r.deps.Clock.Now())

	r.deps.Logger.Info("Transmitting value", zap.Int32("value", value))
	if r.deps.Output != nil {
		r.deps.Output(value)
	}
	return state
}

func (r *Receiver) timedOut() escalation.State {
	state := r.machine.Fire(escalation.EventTimeout)
	n, of := state.Attempt(r.cfg.Thresholds)

	log := r.deps.Logger.With(
		zap.Int("timeouts", state.ConsecutiveTimeouts),
		zap.Int("attempt", n),
		zap.Int("of", of))

	switch state.Level {
	case escalation.LevelWarning:
		r.deps.Health.SetReceiverState(health.ReceiverWarning)
		log.Warn("No data in channel")
	case escalation.LevelRecovery:
		cleared := r.deps.Channel.Clear()
		r.deps.Metrics.IncChannelClears()
		r.deps.Health.SetReceiverState(health.ReceiverRecovery)
		log.Warn("Recovery: channel reset", zap.Int("cleared", cleared))
	case escalation.LevelCriticalShutdown:
		r.deps.Health.SetReceiverState(health.ReceiverShutdown)
		log.Error("Critical failure, preparing to shut down")
	case escalation.LevelTerminated:
		r.deps.Health.SetReceiverState(health.ReceiverShutdown)
		log.Error("Persistent failure detected, terminating")
	}
	return state
}

// Run is the task entry. It returns ErrTerminated once the machine reaches
// its terminal level, or ctx's error when cancelled.
func (r *Receiver) Run(ctx context.Context) error {
	wd := r.deps.Watchdog
	taskID, _ := scheduler.TaskIDFrom(ctx)
	if wd != nil {
		wd.Register(taskID, TaskName)
		defer wd.Unregister(taskID)
	}

	r.deps.Logger.Info("Receiver started", zap.String("id", taskID.String()))

	for {
		state, err := r.Step(ctx)
		if errors.Is(err, memory.ErrAllocation) {
			if err := r.deps.Clock.Delay(ctx, r.cfg.AllocRetryDelay); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if state.Level == escalation.LevelTerminated {
			return ErrTerminated
		}

		if wd != nil {
			if err := wd.Reset(taskID); err != nil {
				r.deps.Logger.Warn("Watchdog reset failed", zap.Error(err))
			}
		}

		if err := r.deps.Clock.Delay(ctx, r.cfg.Interval); err != nil {
			return err
		}
	}
}

// Factory returns an Entry that builds a fresh receiver per task instance,
// so every recreation starts at Normal
func Factory(cfg Config, deps Deps) scheduler.Entry {
	return func(ctx context.Context) error {
		r, err := New(cfg, deps)
		if err != nil {
			return err
		}
		return r.Run(ctx)
	}
}
