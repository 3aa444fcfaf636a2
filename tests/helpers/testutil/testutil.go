// Package testutil provides collaborator mocks and a manual clock for task tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// MockWatchdog is a mock implementation of the task watchdog.
type MockWatchdog struct {
	mock.Mock
}

// Register mocks the Register method.
func (m *MockWatchdog) Register(taskID id.TaskID, name string) {
	m.Called(taskID, name)
}

// Reset mocks the Reset method.
func (m *MockWatchdog) Reset(taskID id.TaskID) error {
	args := m.Called(taskID)
	return args.Error(0)
}

// Unregister mocks the Unregister method.
func (m *MockWatchdog) Unregister(taskID id.TaskID) {
	m.Called(taskID)
}

// MockRestarter is a mock implementation of device.Restarter.
type MockRestarter struct {
	mock.Mock
}

// Restart mocks the Restart method.
func (m *MockRestarter) Restart(reason string) {
	m.Called(reason)
}

// NewMockWatchdog creates a watchdog mock that accepts any call.
func NewMockWatchdog(t *testing.T) *MockWatchdog {
	t.Helper()
	m := new(MockWatchdog)

	m.On("Register", mock.Anything, mock.Anything).Return().Maybe()
	m.On("Reset", mock.Anything).Return(nil).Maybe()
	m.On("Unregister", mock.Anything).Return().Maybe()

	return m
}

// NewMockRestarter creates a restarter mock with no expectations.
// Tests add .On("Restart", ...) for the reasons they expect.
func NewMockRestarter(t *testing.T) *MockRestarter {
	t.Helper()
	return new(MockRestarter)
}

// FakeClock is a manual clock. Delay advances time by the requested
// duration and returns immediately, so task loops run as fast as the test
// lets them.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	delays  []time.Duration
	onDelay func(n int)
}

// NewFakeClock creates a clock reading start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Delay advances the clock by d. It fails only if ctx is done.
func (c *FakeClock) Delay(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.delays = append(c.delays, d)
	n := len(c.delays)
	hook := c.onDelay
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// OnDelay installs a hook called after every Delay with the delay count
func (c *FakeClock) OnDelay(hook func(n int)) {
	c.mu.Lock()
	c.onDelay = hook
	c.mu.Unlock()
}

// Delays returns every duration passed to Delay
func (c *FakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// CancelAfter returns a context cancelled once Delay has been called n times
func (c *FakeClock) CancelAfter(parent context.Context, n int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c.OnDelay(func(count int) {
		if count >= n {
			cancel()
		}
	})
	return ctx, cancel
}
