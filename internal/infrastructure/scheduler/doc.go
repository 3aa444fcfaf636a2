// Package scheduler runs long-lived tasks on goroutines.
//
// A Runtime hands out a Handle per task instance. The supervisor owns those
// handles and uses TerminateTask plus CreateTask to replace a task; the task
// itself never sees its handle, only a context carrying its ID. Priority and
// core affinity are kept as metadata because the Go runtime schedules
// goroutines itself. Stack budgets are charged to a memory.Heap when one is
// configured, so a starved heap makes task creation fail.
//
// Delay and Now go through a benbjohnson/clock Clock, which lets tests drive
// time with clock.NewMock.
package scheduler
