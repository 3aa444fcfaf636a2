package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/shared/id"
)

var (
	ErrInvalidTimeout = errors.New("invalid watchdog timeout")
	ErrNotRegistered  = errors.New("task not registered with watchdog")
)

// Config holds watchdog timing
type Config struct {
	Timeout       time.Duration
	CheckInterval time.Duration
}

// Expired describes a task that missed its deadline
type Expired struct {
	TaskID id.TaskID
	Name   string
	Silent time.Duration
}

type entry struct {
	name      string
	lastReset time.Time
}

// Watchdog expects every registered task to call Reset at least once per
// Timeout. A task that misses it is reported once to onExpire and dropped.
type Watchdog struct {
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
	onExpire func(Expired)

	mu      sync.Mutex
	entries map[id.TaskID]*entry
}

// New creates a watchdog. CheckInterval defaults to a tenth of Timeout.
func New(cfg Config, clk clock.Clock, logger *zap.Logger, onExpire func(Expired)) (*Watchdog, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, cfg.Timeout)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = cfg.Timeout / 10
	}
	if cfg.CheckInterval > cfg.Timeout {
		return nil, fmt.Errorf("%w: check interval %s exceeds timeout %s", ErrInvalidTimeout, cfg.CheckInterval, cfg.Timeout)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watchdog{
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		onExpire: onExpire,
		entries:  make(map[id.TaskID]*entry),
	}, nil
}

// Register starts watching a task. Registering again re-arms it.
func (w *Watchdog) Register(taskID id.TaskID, name string) {
	w.mu.Lock()
	w.entries[taskID] = &entry{name: name, lastReset: w.clock.Now()}
	w.mu.Unlock()

	w.logger.Debug("Task registered", zap.String("task", name), zap.String("id", taskID.String()))
}

// Reset feeds the watchdog on behalf of a task
func (w *Watchdog) Reset(taskID id.TaskID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, taskID)
	}
	e.lastReset = w.clock.Now()
	return nil
}

// Unregister stops watching a task
func (w *Watchdog) Unregister(taskID id.TaskID) {
	w.mu.Lock()
	delete(w.entries, taskID)
	w.mu.Unlock()
}

// Registered returns the number of watched tasks
func (w *Watchdog) Registered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Check reports and removes every task whose last reset is older than Timeout
func (w *Watchdog) Check() []Expired {
	now := w.clock.Now()

	w.mu.Lock()
	var expired []Expired
	for taskID, e := range w.entries {
		if silent := now.Sub(e.lastReset); silent > w.cfg.Timeout {
			expired = append(expired, Expired{TaskID: taskID, Name: e.name, Silent: silent})
			delete(w.entries, taskID)
		}
	}
	w.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].TaskID < expired[j].TaskID })

	for _, exp := range expired {
		w.logger.Error("Task watchdog expired",
			zap.String("task", exp.Name),
			zap.String("id", exp.TaskID.String()),
			zap.Duration("silent", exp.Silent),
			zap.Duration("timeout", w.cfg.Timeout))
		if w.onExpire != nil {
			w.onExpire(exp)
		}
	}
	return expired
}

// Run checks every CheckInterval until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := w.clock.Ticker(w.cfg.CheckInterval)
	defer ticker.Stop()

	w.logger.Info("Task watchdog running",
		zap.Duration("timeout", w.cfg.Timeout),
		zap.Duration("check_interval", w.cfg.CheckInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}

// Disabled satisfies the task-facing watchdog contract without watching
type Disabled struct{}

func (Disabled) Register(id.TaskID, string) {}
func (Disabled) Reset(id.TaskID) error      { return nil }
func (Disabled) Unregister(id.TaskID)       {}
