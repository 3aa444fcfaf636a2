// Package id provides identifiers for task instances and boots.
//
// Task instance IDs are prefixed ULIDs, so they sort by creation time and a
// recreated task is distinguishable from the instance it replaced:
//
//	task_01HZX3J5V6N8Q2W4E6R8T0Y2U4
//
// Boot IDs are random UUIDs minted once per system start and attached to every
// status snapshot.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TaskID identifies one instance of a scheduled task
type TaskID string

// BootID identifies one system start
type BootID string

// TaskPrefix is prepended to every task instance ID
const TaskPrefix = "task"

var (
	entropyMu sync.Mutex
	// Monotonic within a millisecond, so instances created in one
	// supervision cycle still sort in creation order.
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewTaskID returns a fresh task instance ID
func NewTaskID() TaskID {
	return NewTaskIDAt(time.Now())
}

// NewTaskIDAt returns a task instance ID stamped with t
func NewTaskIDAt(t time.Time) TaskID {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyMu.Unlock()
	return TaskID(TaskPrefix + "_" + u.String())
}

// NewBootID generates a new boot ID
func NewBootID() BootID {
	return BootID(uuid.NewString())
}

func (id TaskID) String() string { return string(id) }
func (id BootID) String() string { return string(id) }

// CreatedAt extracts the creation time embedded in a task ID
func (id TaskID) CreatedAt() (time.Time, error) {
	raw, ok := strings.CutPrefix(string(id), TaskPrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("task id %q: missing %q prefix", id, TaskPrefix)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("task id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}

// IsValid reports whether the boot ID is a well-formed UUID
func (id BootID) IsValid() bool {
	return uuid.Validate(string(id)) == nil
}
