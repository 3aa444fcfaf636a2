package device

import (
	"sync"

	"go.uber.org/zap"
)

// Restarter restarts the whole device. It is irrevocable; callers stop
// doing useful work once it has been called.
type Restarter interface {
	Restart(reason string)
}

// FuncRestarter adapts a function to Restarter
type FuncRestarter func(reason string)

func (f FuncRestarter) Restart(reason string) { f(reason) }

// Latch records the first restart request and closes Requested. The entry
// point selects on Requested, tears the process down and exits with a code
// the process manager treats as "restart me".
type Latch struct {
	logger *zap.Logger

	once      sync.Once
	mu        sync.Mutex
	reason    string
	requested chan struct{}
}

// NewLatch creates an unset latch
func NewLatch(logger *zap.Logger) *Latch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Latch{
		logger:    logger,
		requested: make(chan struct{}),
	}
}

// Restart sets the latch. Only the first reason is kept.
func (l *Latch) Restart(reason string) {
	l.once.Do(func() {
		l.mu.Lock()
		l.reason = reason
		l.mu.Unlock()

		l.logger.Error("Device restart requested", zap.String("reason", reason))
		_ = l.logger.Sync()
		close(l.requested)
	})
}

// Requested is closed once a restart has been requested
func (l *Latch) Requested() <-chan struct{} {
	return l.requested
}

// Reason returns the first restart reason, or "" if none was requested
func (l *Latch) Reason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}
