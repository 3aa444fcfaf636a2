package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskIDsSortByCreation(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := NewTaskIDAt(at)
	b := NewTaskIDAt(at)
	c := NewTaskIDAt(at.Add(time.Millisecond))

	assert.Less(t, a.String(), b.String())
	assert.Less(t, b.String(), c.String())

	created, err := a.CreatedAt()
	require.NoError(t, err)
	assert.True(t, created.Equal(at))
}

func TestNewTaskID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	taskID := NewTaskID()

	assert.True(t, strings.HasPrefix(taskID.String(), TaskPrefix+"_"))

	created, err := taskID.CreatedAt()
	require.NoError(t, err)
	assert.True(t, created.After(before))
}

func TestTaskIDCreatedAtRejectsForeignIDs(t *testing.T) {
	_, err := TaskID("sess_01ARZ3NDEKTSV4RRFFQ69G5FAV").CreatedAt()
	assert.Error(t, err)

	_, err = TaskID("task_not-a-ulid").CreatedAt()
	assert.Error(t, err)
}

func TestNewBootID(t *testing.T) {
	a := NewBootID()
	b := NewBootID()

	assert.True(t, a.IsValid())
	assert.NotEqual(t, a, b)
	assert.False(t, BootID("nope").IsValid())
}

func TestConcurrentTaskIDs(t *testing.T) {
	const n = 200
	ids := make(chan TaskID, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewTaskID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[TaskID]bool)
	for taskID := range ids {
		assert.False(t, seen[taskID], "duplicate id %s", taskID)
		seen[taskID] = true
	}
	assert.Len(t, seen, n)
}
