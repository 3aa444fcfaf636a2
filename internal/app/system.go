package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/triad/internal/domain/channel"
	"github.com/GriffinCanCode/triad/internal/domain/escalation"
	"github.com/GriffinCanCode/triad/internal/domain/generator"
	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/domain/receiver"
	"github.com/GriffinCanCode/triad/internal/domain/supervisor"
	"github.com/GriffinCanCode/triad/internal/infrastructure/config"
	"github.com/GriffinCanCode/triad/internal/infrastructure/device"
	"github.com/GriffinCanCode/triad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	"github.com/GriffinCanCode/triad/internal/infrastructure/watchdog"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// ReasonResourceCreation is the device restart reason for a failed startup
const ReasonResourceCreation = "resource_creation"

var (
	ErrResourceCreation  = errors.New("resource creation failed")
	ErrMissingDependency = errors.New("app: missing dependency")
	ErrAlreadyStarted    = errors.New("system already started")
)

// TaskWatchdog is the watchdog as seen by the worker tasks
type TaskWatchdog interface {
	generator.Watchdog
	receiver.Watchdog
}

// Options are the process-level collaborators of a System
type Options struct {
	Config    *config.Config
	Logger    *logging.Logger
	Metrics   *monitoring.Metrics
	Restarter device.Restarter
	// Clock drives task delays and the watchdog; defaults to the wall clock
	Clock clock.Clock
	// Sink receives every supervision snapshot, typically the stream hub
	Sink supervisor.SnapshotSink
	// Output receives every value the receiver delivers
	Output func(value int32)
}

// System owns the shared resources and the three tasks
type System struct {
	cfg       *config.Config
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	restarter device.Restarter
	bootID    id.BootID

	heap       *memory.Heap
	channel    *channel.Bounded[int32]
	signal     *health.Signal
	runtime    *scheduler.Runtime
	watchdog   *watchdog.Watchdog
	supervisor *supervisor.Supervisor

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates the heap, channel, health signal, scheduler, watchdog and
// supervisor. Any failure requests a device restart and is returned wrapped
// in ErrResourceCreation.
func New(opts Options) (*System, error) {
	if opts.Config == nil || opts.Restarter == nil {
		return nil, ErrMissingDependency
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	cfg := opts.Config
	s := &System{
		cfg:       cfg,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		restarter: opts.Restarter,
		bootID:    id.NewBootID(),
	}
	log := s.logger.Task("app")

	log.Info("Starting producer-consumer system",
		zap.String("boot_id", s.bootID.String()),
		zap.Int("channel_capacity", cfg.Channel.Capacity),
		zap.Duration("supervisor_period", cfg.Supervisor.Period.Duration()),
		zap.Int64("heap_budget", cfg.Memory.HeapBudget))

	var err error
	if s.heap, err = memory.NewHeap(cfg.Memory.HeapBudget); err != nil {
		return nil, s.fail("heap", err)
	}
	if s.channel, err = channel.New[int32](cfg.Channel.Capacity); err != nil {
		return nil, s.fail("channel", err)
	}
	s.metrics.SetChannelCapacity(s.channel.Cap())

	s.signal = health.NewSignal(opts.Clock.Now())
	s.runtime = scheduler.New(scheduler.Options{
		Clock:            opts.Clock,
		Logger:           s.logger.Task("scheduler"),
		Stacks:           s.heap,
		TerminateTimeout: cfg.Scheduler.TerminateTimeout.Duration(),
	})

	var taskWatchdog TaskWatchdog = watchdog.Disabled{}
	if cfg.Watchdog.Enabled {
		s.watchdog, err = watchdog.New(watchdog.Config{
			Timeout:       cfg.Watchdog.Timeout.Duration(),
			CheckInterval: cfg.Watchdog.CheckInterval.Duration(),
		}, opts.Clock, s.logger.Task("watchdog"), s.onWatchdogExpired)
		if err != nil {
			return nil, s.fail("watchdog", err)
		}
		taskWatchdog = s.watchdog
		log.Info("Task watchdog configured",
			zap.Duration("timeout", cfg.Watchdog.Timeout.Duration()))
	} else {
		log.Warn("Task watchdog disabled")
	}

	genEntry := generator.Factory(generator.Config{
		Interval:     cfg.Generator.Interval.Duration(),
		DropLogRate:  cfg.Generator.DropLogRate,
		DropLogBurst: cfg.Generator.DropLogBurst,
	}, generator.Deps{
		Channel:  s.channel,
		Health:   s.signal,
		Clock:    s.runtime,
		Watchdog: taskWatchdog,
		Metrics:  s.metrics,
		Logger:   s.logger.Task(generator.TaskName),
	})

	recvEntry := receiver.Factory(receiver.Config{
		Timeout:         cfg.Receiver.Timeout.Duration(),
		Interval:        cfg.Receiver.Interval.Duration(),
		AllocRetryDelay: cfg.Receiver.AllocRetryDelay.Duration(),
		Thresholds: escalation.Thresholds{
			Warning:  cfg.Receiver.WarningThreshold,
			Recovery: cfg.Receiver.RecoveryThreshold,
			Shutdown: cfg.Receiver.ShutdownThreshold,
		},
	}, receiver.Deps{
		Channel:  s.channel,
		Health:   s.signal,
		Clock:    s.runtime,
		Heap:     s.heap,
		Watchdog: taskWatchdog,
		Metrics:  s.metrics,
		Logger:   s.logger.Task(receiver.TaskName),
		Output:   opts.Output,
	})

	s.supervisor, err = supervisor.New(supervisor.Config{
		Period:              cfg.Supervisor.Period.Duration(),
		MaxReceiverRestarts: cfg.Supervisor.MaxReceiverRestarts,
		RecoveryCycles:      cfg.Supervisor.RecoveryCycles,
		RestartGrace:        cfg.Supervisor.RestartGrace.Duration(),
		LowMemoryFloor:      cfg.Supervisor.LowMemoryFloor,
	}, supervisor.Deps{
		Scheduler: s.runtime,
		Health:    s.signal,
		Heap:      s.heap,
		Channel:   s.channel,
		Restarter: s.restarter,
		Generator: taskSpec(generator.TaskName, cfg.Generator.Task(), genEntry),
		Receiver:  taskSpec(receiver.TaskName, cfg.Receiver.Task(), recvEntry),
		Metrics:   s.metrics,
		Logger:    s.logger.Task(supervisor.TaskName),
		Sink:      opts.Sink,
		BootID:    s.bootID,
	})
	if err != nil {
		return nil, s.fail("supervisor", err)
	}

	return s, nil
}

func taskSpec(name string, task config.TaskConfig, entry scheduler.Entry) supervisor.TaskFactory {
	return func() scheduler.TaskSpec {
		return scheduler.TaskSpec{
			Name:        name,
			Entry:       entry,
			StackBudget: task.StackBudget,
			Priority:    task.Priority,
			Core:        task.Core,
		}
	}
}

// Start creates the generator, receiver and supervisor tasks and starts the
// watchdog. Tasks run until Stop or until ctx is cancelled.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	if err := s.supervisor.Boot(groupCtx); err != nil {
		cancel()
		return s.fail("initial tasks", err)
	}

	task := s.cfg.Supervisor.Task()
	_, err := s.runtime.CreateTask(groupCtx, scheduler.TaskSpec{
		Name:        supervisor.TaskName,
		Entry:       s.supervisor.Run,
		StackBudget: task.StackBudget,
		Priority:    task.Priority,
		Core:        task.Core,
	})
	if err != nil {
		cancel()
		return s.fail("supervisor task", err)
	}

	if s.watchdog != nil {
		group.Go(func() error {
			if err := s.watchdog.Run(groupCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	s.cancel = cancel
	s.group = group
	s.logger.Task("app").Info("All tasks created successfully",
		zap.Int("tasks", len(s.runtime.Tasks())))
	return nil
}

// Stop cancels every task and waits for them within ctx
func (s *System) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	shutdownErr := s.runtime.Shutdown(ctx)
	var groupErr error
	if group != nil {
		groupErr = group.Wait()
	}
	s.logger.Task("app").Info("System stopped")
	return errors.Join(shutdownErr, groupErr)
}

func (s *System) onWatchdogExpired(e watchdog.Expired) {
	reason := "watchdog:" + e.Name
	s.metrics.RecordWatchdogExpiry(e.Name)
	s.metrics.RecordDeviceRestart(reason)
	s.logger.Flush()
	s.restarter.Restart(reason)
}

func (s *System) fail(resource string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %w", ErrResourceCreation, resource, err)
	s.logger.Task("app").Error("Failed to create resources", zap.String("resource", resource), zap.Error(err))
	s.metrics.RecordDeviceRestart(ReasonResourceCreation)
	s.logger.Flush()
	s.restarter.Restart(ReasonResourceCreation)
	return wrapped
}

// BootID identifies this system start
func (s *System) BootID() id.BootID { return s.bootID }

// Supervisor returns the supervisor, the source of status snapshots
func (s *System) Supervisor() *supervisor.Supervisor { return s.supervisor }

// Runtime returns the task runtime
func (s *System) Runtime() *scheduler.Runtime { return s.runtime }

// Channel returns the generator to receiver channel
func (s *System) Channel() *channel.Bounded[int32] { return s.channel }

// Signal returns the shared health signal
func (s *System) Signal() *health.Signal { return s.signal }

// Heap returns the device heap
func (s *System) Heap() *memory.Heap { return s.heap }
