package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

var (
	ErrInvalidTask      = errors.New("invalid task spec")
	ErrTaskCreation     = errors.New("task creation failed")
	ErrTaskPanic        = errors.New("task panicked")
	ErrTerminateTimeout = errors.New("task did not stop before terminate timeout")
)

// StackAllocator reserves a task's stack budget
type StackAllocator interface {
	Alloc(size int) (*memory.Block, error)
}

// Options configures a Runtime
type Options struct {
	Clock            clock.Clock
	Logger           *zap.Logger
	Stacks           StackAllocator
	TerminateTimeout time.Duration
}

// Runtime runs tasks as goroutines and keeps a registry of live handles
type Runtime struct {
	clock            clock.Clock
	logger           *zap.Logger
	stacks           StackAllocator
	terminateTimeout time.Duration

	mu    sync.Mutex
	tasks map[id.TaskID]*Handle
	wg    sync.WaitGroup
}

// New creates a runtime. Zero options fall back to the wall clock, a no-op
// logger, no stack accounting and a one second terminate timeout.
func New(opts Options) *Runtime {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TerminateTimeout <= 0 {
		opts.TerminateTimeout = time.Second
	}

	return &Runtime{
		clock:            opts.Clock,
		logger:           opts.Logger,
		stacks:           opts.Stacks,
		terminateTimeout: opts.TerminateTimeout,
		tasks:            make(map[id.TaskID]*Handle),
	}
}

// CreateTask starts spec.Entry on a new goroutine. The task's context is
// derived from ctx and carries the new task ID.
func (r *Runtime) CreateTask(ctx context.Context, spec TaskSpec) (*Handle, error) {
	if spec.Name == "" || spec.Entry == nil {
		return nil, fmt.Errorf("%w: name and entry are required", ErrInvalidTask)
	}

	var stack *memory.Block
	if r.stacks != nil && spec.StackBudget > 0 {
		block, err := r.stacks.Alloc(spec.StackBudget)
		if err != nil {
			return nil, fmt.Errorf("%w: %s stack: %w", ErrTaskCreation, spec.Name, err)
		}
		stack = block
	}

	taskID := id.NewTaskID()
	taskCtx, cancel := context.WithCancel(WithTaskID(ctx, taskID))

	h := &Handle{
		id:        taskID,
		spec:      spec,
		startedAt: r.clock.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		stack:     stack,
	}
	h.spec.Entry = nil

	r.mu.Lock()
	r.tasks[taskID] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(taskCtx, h, spec.Entry)

	r.logger.Debug("Task created",
		zap.String("task", spec.Name),
		zap.String("id", taskID.String()),
		zap.Int("priority", spec.Priority),
		zap.Int("core", spec.Core),
		zap.Int("stack", spec.StackBudget))

	return h, nil
}

func (r *Runtime) run(ctx context.Context, h *Handle, entry Entry) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			h.err = fmt.Errorf("%w: %v", ErrTaskPanic, rec)
			r.logger.Error("Task panicked",
				zap.String("task", h.Name()),
				zap.String("id", h.id.String()),
				zap.Any("reason", rec),
				zap.String("stack", string(debug.Stack())))
		}

		h.cancel()
		if h.stack != nil {
			h.stack.Free()
		}

		r.mu.Lock()
		delete(r.tasks, h.id)
		r.mu.Unlock()

		close(h.done)
	}()

	h.err = entry(ctx)
	if h.err != nil && !errors.Is(h.err, context.Canceled) {
		r.logger.Warn("Task exited",
			zap.String("task", h.Name()),
			zap.String("id", h.id.String()),
			zap.Error(h.err))
	}
}

// TerminateTask cancels the task and waits for its entry to return. A nil
// handle or a task that already exited is not an error.
func (r *Runtime) TerminateTask(h *Handle) error {
	if h == nil {
		return nil
	}
	h.cancel()

	timer := r.clock.Timer(r.terminateTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
		r.logger.Error("Task ignored termination",
			zap.String("task", h.Name()),
			zap.String("id", h.id.String()),
			zap.Duration("timeout", r.terminateTimeout))
		return fmt.Errorf("%w: %s", ErrTerminateTimeout, h.Name())
	}
}

// Delay blocks for d or until ctx is cancelled
func (r *Runtime) Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := r.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now returns the runtime clock's current time
func (r *Runtime) Now() time.Time {
	return r.clock.Now()
}

// Clock returns the clock driving Delay and Now
func (r *Runtime) Clock() clock.Clock {
	return r.clock
}

// Tasks lists live tasks ordered by start time
func (r *Runtime) Tasks() []TaskInfo {
	r.mu.Lock()
	infos := make([]TaskInfo, 0, len(r.tasks))
	for _, h := range r.tasks {
		infos = append(infos, h.Info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Shutdown cancels every task and waits for them to return or for ctx to end
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, h := range r.tasks {
		h.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
