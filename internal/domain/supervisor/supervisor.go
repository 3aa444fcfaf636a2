package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/infrastructure/device"
	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// TaskName is the scheduler name of the supervisor task
const TaskName = "supervisor"

// Restart reasons, used in logs and metric labels
const (
	ReasonMissing          = "missing"
	ReasonStaleHeartbeat   = "stale_heartbeat"
	ReasonRestartThreshold = "restart_threshold"
)

var (
	ErrMissingDependency = errors.New("supervisor: missing dependency")
	ErrStaleHeartbeat    = errors.New("stale heartbeat")
	// ErrRestartThreshold is returned by Cycle after it has requested a
	// device restart. It wraps resilience.ErrBudgetExhausted.
	ErrRestartThreshold = errors.New("receiver restart threshold exceeded")
)

// Scheduler is the task lifecycle contract the supervisor drives
type Scheduler interface {
	CreateTask(ctx context.Context, spec scheduler.TaskSpec) (*scheduler.Handle, error)
	TerminateTask(h *scheduler.Handle) error
	Delay(ctx context.Context, d time.Duration) error
	Now() time.Time
	Tasks() []scheduler.TaskInfo
}

// HeapStats reports device heap usage
type HeapStats interface {
	FreeBytes() int64
	MinimumEverFree() int64
}

// ChannelStats reports channel occupancy
type ChannelStats interface {
	Len() int
	Cap() int
}

// SnapshotSink receives every status snapshot
type SnapshotSink interface {
	Publish(s Snapshot)
}

// TaskFactory returns the spec for a fresh task instance
type TaskFactory func() scheduler.TaskSpec

// Config holds supervision policy
type Config struct {
	Period              time.Duration
	MaxReceiverRestarts int
	// RecoveryCycles healthy cycles forgive earlier receiver restarts; zero never forgives
	RecoveryCycles int
	RestartGrace   time.Duration
	LowMemoryFloor int64
}

// Deps are the supervisor's collaborators
type Deps struct {
	Scheduler Scheduler
	Health    *health.Signal
	Heap      HeapStats
	Channel   ChannelStats
	Restarter device.Restarter
	Generator TaskFactory
	Receiver  TaskFactory
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	Sink      SnapshotSink
	BootID    id.BootID
	// Host reads host memory; defaults to memory.HostStats
	Host func() memory.Host
}

// Supervisor owns the generator and receiver handles and recreates either
// task when its heartbeat goes stale
type Supervisor struct {
	cfg    Config
	deps   Deps
	budget *resilience.Budget

	// owned by the supervisor goroutine
	generator *scheduler.Handle
	receiver  *scheduler.Handle
	cycles    uint64

	mu     sync.RWMutex
	latest *Snapshot
}

// New creates a supervisor. Boot must be called before the first Cycle.
func New(cfg Config, deps Deps) (*Supervisor, error) {
	if deps.Scheduler == nil || deps.Health == nil || deps.Heap == nil ||
		deps.Restarter == nil || deps.Generator == nil || deps.Receiver == nil {
		return nil, ErrMissingDependency
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("supervisor: period must be positive, got %s", cfg.Period)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Host == nil {
		deps.Host = memory.HostStats
	}

	s := &Supervisor{cfg: cfg, deps: deps}
	s.budget = resilience.New(receiverName(deps), resilience.Settings{
		MaxRestarts:    cfg.MaxReceiverRestarts,
		RecoveryCycles: cfg.RecoveryCycles,
		OnExhausted: func(name string, counts resilience.Counts) {
			deps.Logger.Error("Restart budget exhausted",
				zap.String("task", name),
				zap.Int("restarts", counts.ConsecutiveRestarts),
				zap.Int("total_restarts", counts.TotalRestarts))
		},
	})
	return s, nil
}

func receiverName(deps Deps) string {
	if name := deps.Receiver().Name; name != "" {
		return name
	}
	return "receiver"
}

// Boot creates the first generator and receiver instances. These creations
// do not count against the restart budget.
func (s *Supervisor) Boot(ctx context.Context) error {
	gen, err := s.deps.Scheduler.CreateTask(ctx, s.deps.Generator())
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}
	recv, err := s.deps.Scheduler.CreateTask(ctx, s.deps.Receiver())
	if err != nil {
		if termErr := s.deps.Scheduler.TerminateTask(gen); termErr != nil {
			s.deps.Logger.Error("Task termination failed",
				zap.String("task", gen.Name()),
				zap.Error(termErr))
		}
		return fmt.Errorf("create receiver: %w", err)
	}

	s.generator = gen
	s.receiver = recv
	s.deps.Logger.Info("Tasks created",
		zap.String("generator", gen.ID().String()),
		zap.String("receiver", recv.ID().String()))
	return nil
}

// Run waits one period, runs a cycle, and repeats until ctx is cancelled or
// the restart threshold is exceeded
func (s *Supervisor) Run(ctx context.Context) error {
	s.deps.Logger.Info("Supervisor started", zap.Duration("period", s.cfg.Period))

	for {
		if err := s.deps.Scheduler.Delay(ctx, s.cfg.Period); err != nil {
			return err
		}
		if err := s.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycle runs one supervision pass: report status, check the receiver, check
// the generator, check memory. It returns an error wrapping
// ErrRestartThreshold after requesting a device restart, or ctx's error if
// cancelled during the restart grace delay.
func (s *Supervisor) Cycle(ctx context.Context) error {
	start := time.Now()
	now := s.deps.Scheduler.Now()
	s.cycles++

	snap := s.observe(now)
	s.report(snap)

	if s.receiver == nil || health.IsStale(snap.signal.ReceiverHeartbeat, now, s.cfg.Period) {
		reason := ReasonStaleHeartbeat
		if s.receiver == nil {
			reason = ReasonMissing
		}
		snap.Actions = append(snap.Actions, "receiver_restarted")

		err := s.restartReceiver(ctx, now, reason)
		snap.ReceiverRestarts = s.budget.Counts().ConsecutiveRestarts
		s.deps.Metrics.SetReceiverRestarts(snap.ReceiverRestarts)
		if err != nil {
			snap.Actions = append(snap.Actions, "device_restart")
			s.publish(snap, start)
			return s.restartDevice(ctx, err)
		}
	} else {
		s.budget.RecordHealthy()
		snap.ReceiverRestarts = s.budget.Counts().ConsecutiveRestarts
		s.deps.Metrics.SetReceiverRestarts(snap.ReceiverRestarts)
	}

	if s.generator == nil || health.IsStale(snap.signal.GeneratorHeartbeat, now, s.cfg.Period) {
		snap.Actions = append(snap.Actions, "generator_restarted")
		s.restartGenerator(ctx, now)
	}

	if snap.HeapMinFree < s.cfg.LowMemoryFloor {
		snap.LowMemory = true
		s.deps.Metrics.IncLowMemoryAlerts()
		s.deps.Logger.Error("Critical alert: minimum free memory very low",
			zap.Int64("min_free", snap.HeapMinFree),
			zap.Int64("floor", s.cfg.LowMemoryFloor))
	}

	s.publish(snap, start)
	return nil
}

func (s *Supervisor) restartReceiver(ctx context.Context, now time.Time, reason string) error {
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Int("attempt", s.budget.Counts().ConsecutiveRestarts+1),
	}
	if reason == ReasonStaleHeartbeat {
		fields = append(fields, zap.Error(ErrStaleHeartbeat))
	}
	s.deps.Logger.Warn("Recreating receiver task", fields...)

	s.recreate(ctx, &s.receiver, s.deps.Receiver)

	s.deps.Health.StampReceiver(now)
	s.deps.Health.Clear(health.ReceiverFaults)
	s.deps.Metrics.RecordTaskRestart(receiverName(s.deps), reason)

	return s.budget.RecordRestart()
}

func (s *Supervisor) restartGenerator(ctx context.Context, now time.Time) {
	reason := ReasonStaleHeartbeat
	if s.generator == nil {
		reason = ReasonMissing
	}
	s.deps.Logger.Warn("Recreating generator task", zap.String("reason", reason))

	s.recreate(ctx, &s.generator, s.deps.Generator)

	s.deps.Health.StampGenerator(now)
	s.deps.Metrics.RecordTaskRestart(s.deps.Generator().Name, reason)
}

// recreate terminates *slot if set and stores a fresh instance. A failed
// creation leaves the slot empty so the next cycle tries again.
func (s *Supervisor) recreate(ctx context.Context, slot **scheduler.Handle, factory TaskFactory) {
	if *slot != nil {
		if err := s.deps.Scheduler.TerminateTask(*slot); err != nil {
			s.deps.Logger.Error("Task termination failed", zap.Error(err))
		}
		*slot = nil
	}

	spec := factory()
	h, err := s.deps.Scheduler.CreateTask(ctx, spec)
	if err != nil {
		s.deps.Logger.Error("Task creation failed", zap.String("task", spec.Name), zap.Error(err))
		return
	}
	*slot = h
}

func (s *Supervisor) restartDevice(ctx context.Context, cause error) error {
	counts := s.budget.Counts()
	s.deps.Logger.Error("Excessive failures detected, restarting device",
		zap.Int("receiver_restarts", counts.ConsecutiveRestarts),
		zap.Duration("grace", s.cfg.RestartGrace))
	_ = s.deps.Logger.Sync()

	if err := s.deps.Scheduler.Delay(ctx, s.cfg.RestartGrace); err != nil {
		return err
	}

	s.deps.Metrics.RecordDeviceRestart(ReasonRestartThreshold)
	s.deps.Restarter.Restart(ReasonRestartThreshold)
	return fmt.Errorf("%w after %d restarts: %w", ErrRestartThreshold, counts.ConsecutiveRestarts, cause)
}

// Latest returns the most recent snapshot, or false before the first cycle
func (s *Supervisor) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Snapshot{}, false
	}
	return *s.latest, true
}

// RestartBudget exposes the receiver restart counts
func (s *Supervisor) RestartBudget() resilience.Counts {
	return s.budget.Counts()
}

func (s *Supervisor) publish(snap Snapshot, start time.Time) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()

	if s.deps.Sink != nil {
		s.deps.Sink.Publish(snap)
	}
	s.deps.Metrics.RecordCycle(time.Since(start))
}
