package scheduler

import (
	"context"
	"time"

	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// Entry is the body of a task. It runs until it returns or ctx is cancelled.
type Entry func(ctx context.Context) error

// TaskSpec describes a task to create. Priority and Core are recorded on the
// handle but do not influence the Go scheduler.
type TaskSpec struct {
	Name        string
	Entry       Entry
	StackBudget int
	Priority    int
	Core        int
}

// TaskInfo is a read-only view of a handle
type TaskInfo struct {
	ID          id.TaskID `json:"id"`
	Name        string    `json:"name"`
	Priority    int       `json:"priority"`
	Core        int       `json:"core"`
	StackBudget int       `json:"stack_budget"`
	StartedAt   time.Time `json:"started_at"`
	Alive       bool      `json:"alive"`
	Err         string    `json:"error,omitempty"`
}

// Handle references one running task instance
type Handle struct {
	id        id.TaskID
	spec      TaskSpec
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	stack     *memory.Block
}

func (h *Handle) ID() id.TaskID        { return h.id }
func (h *Handle) Name() string         { return h.spec.Name }
func (h *Handle) Priority() int        { return h.spec.Priority }
func (h *Handle) Core() int            { return h.spec.Core }
func (h *Handle) StackBudget() int     { return h.spec.StackBudget }
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed when the task's entry has returned
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the task is still running
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Err returns the error the entry exited with. It is nil while the task runs.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Info returns a snapshot of the handle
func (h *Handle) Info() TaskInfo {
	info := TaskInfo{
		ID:          h.id,
		Name:        h.spec.Name,
		Priority:    h.spec.Priority,
		Core:        h.spec.Core,
		StackBudget: h.spec.StackBudget,
		StartedAt:   h.startedAt,
		Alive:       h.Alive(),
	}
	if err := h.Err(); err != nil {
		info.Err = err.Error()
	}
	return info
}

type taskIDKey struct{}

// WithTaskID returns a context carrying the task instance ID
func WithTaskID(ctx context.Context, taskID id.TaskID) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFrom returns the ID of the task whose entry received ctx
func TaskIDFrom(ctx context.Context) (id.TaskID, bool) {
	taskID, ok := ctx.Value(taskIDKey{}).(id.TaskID)
	return taskID, ok
}
