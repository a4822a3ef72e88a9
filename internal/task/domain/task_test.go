package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchKey(t *testing.T) {
	assert.Equal(t, "evt:evt-1:curation_cycle", DispatchKey("evt-1", TaskCurationCycle))
}

func TestNewWorkerTask(t *testing.T) {
	// Arrange
	payload := map[string]any{"pack_ids": []string{"p1", "p2"}}

	// Act
	task, err := NewWorkerTask(TaskCurationCycle, 65, DispatchKey("evt-1", TaskCurationCycle), payload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, TaskCurationCycle, task.TaskType)
	assert.Equal(t, 65, task.Priority)
	assert.Equal(t, DefaultTaskMaxAttempts, task.MaxAttempts)
	assert.JSONEq(t, `{"pack_ids":["p1","p2"]}`, string(task.Payload))
}

func TestNewWorkerTask_Invalid(t *testing.T) {
	_, err := NewWorkerTask("", 10, "k", nil)
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = NewWorkerTask(TaskRebuildCycle, 10, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = NewWorkerTask(TaskRebuildCycle, 10, "k", func() {})
	assert.Error(t, err)
}

func TestTaskEnqueued_PartitionKey(t *testing.T) {
	evt := TaskEnqueued{TaskID: "t1", TaskType: TaskRebuildCycle}
	assert.Equal(t, "rebuild_cycle", evt.PartitionKey())

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"task_type":"rebuild_cycle"`)
}
