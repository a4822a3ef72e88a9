package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/migrations"
	sharedSQLite "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/sqlite"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/task/infra/outbound/db/sqlite"
)

func newQueue(t *testing.T, clk clock.Clock) *sqlite.TaskQueueSQLite {
	t.Helper()
	db, err := sharedSQLite.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Up(db, migrations.DriverSQLite))
	return sqlite.NewTaskQueueSQLite(db, clk)
}

func mustTask(t *testing.T, taskType taskDomain.TaskType, priority int, key string) *taskDomain.WorkerTask {
	t.Helper()
	task, err := taskDomain.NewWorkerTask(taskType, priority, key, map[string]string{"reason": "test"})
	require.NoError(t, err)
	return task
}

func TestTaskQueueSQLite_DispatchKeyDeduplicates(t *testing.T) {
	// ARRANGE
	ctx := context.Background()
	q := newQueue(t, clock.NewFakeClock(time.Now()))
	key := taskDomain.DispatchKey("evt-1", taskDomain.TaskCurationCycle)

	// ACT
	first, err := q.Enqueue(ctx, mustTask(t, taskDomain.TaskCurationCycle, 65, key))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, mustTask(t, taskDomain.TaskCurationCycle, 65, key))
	require.NoError(t, err)

	// ASSERT
	assert.True(t, first)
	assert.False(t, second)
	n, err := q.CountByStatus(ctx, sharedDomain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := q.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 65, stored.Priority)
	assert.JSONEq(t, `{"reason":"test"}`, string(stored.Payload))
}

func TestTaskQueueSQLite_ClaimFiltersByType(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, clock.NewFakeClock(time.Now()))

	_, err := q.Enqueue(ctx, mustTask(t, taskDomain.TaskClassificationCycle, 80, "a"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, mustTask(t, taskDomain.TaskRebuildCycle, 60, "b"))
	require.NoError(t, err)

	task, err := q.Claim(ctx, taskDomain.TaskRebuildCycle)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, taskDomain.TaskRebuildCycle, task.TaskType)

	task, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, taskDomain.TaskClassificationCycle, task.TaskType)

	require.NoError(t, q.Complete(ctx, task.ID))
	assert.ErrorIs(t, q.Complete(ctx, task.ID), sharedDomain.ErrInvalidTransition)
}

func TestTaskQueueSQLite_FailUntilTerminal(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Now())
	q := newQueue(t, clk)

	task := mustTask(t, taskDomain.TaskRebuildCycle, 60, "rebuild")
	task.MaxAttempts = 2
	_, err := q.Enqueue(ctx, task)
	require.NoError(t, err)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	status, err := q.Fail(ctx, claimed.ID, sharedDomain.FailOptions{Error: "x", RetryDelay: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, sharedDomain.StatusPending, status)

	clk.Advance(10 * time.Second)
	claimed, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	status, err = q.Fail(ctx, claimed.ID, sharedDomain.FailOptions{Error: "y", RetryDelay: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, sharedDomain.StatusFailed, status)
}

func TestTaskQueueSQLite_Unprovisioned(t *testing.T) {
	db, err := sharedSQLite.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()
	q := sqlite.NewTaskQueueSQLite(db, nil)

	created, err := q.Enqueue(context.Background(), mustTask(t, taskDomain.TaskRebuildCycle, 60, "k"))
	assert.False(t, created)
	assert.ErrorIs(t, err, sharedDomain.ErrStorageNotProvisioned)
}
