package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	sharedSQLite "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/sqlite"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
)

const taskColumns = `id, task_type, payload, priority, status, available_at, attempts, max_attempts,
	idempotency_key, last_error, created_at, updated_at`

// TaskQueueSQLite implementa taskDomain.TaskQueue sobre worker_tasks.
type TaskQueueSQLite struct {
	db    *sql.DB
	clock clock.Clock
}

func NewTaskQueueSQLite(db *sql.DB, clk clock.Clock) *TaskQueueSQLite {
	if clk == nil {
		clk = clock.Real()
	}
	return &TaskQueueSQLite{db: db, clock: clk}
}

func (q *TaskQueueSQLite) Enqueue(ctx context.Context, task *taskDomain.WorkerTask) (bool, error) {
	if task == nil || task.TaskType == "" || task.IdempotencyKey == "" {
		return false, taskDomain.ErrInvalidTask
	}
	now := q.clock.Now()
	id := uuid.NewString()
	if task.AvailableAt.IsZero() {
		task.AvailableAt = now
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = taskDomain.DefaultTaskMaxAttempts
	}
	payload := string(task.Payload)
	if payload == "" {
		payload = "{}"
	}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO worker_tasks
			(id, task_type, payload, priority, status, available_at, attempts, max_attempts,
			 idempotency_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, 0, ?, ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO NOTHING`,
		id, string(task.TaskType), payload, task.Priority, sharedSQLite.ToMillis(task.AvailableAt),
		task.MaxAttempts, task.IdempotencyKey, sharedSQLite.ToMillis(now), sharedSQLite.ToMillis(now),
	)
	if err != nil {
		return false, sharedSQLite.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	task.ID = id
	task.Status = sharedDomain.StatusPending
	task.Attempts = 0
	task.CreatedAt = sharedSQLite.FromMillis(sharedSQLite.ToMillis(now))
	task.UpdatedAt = task.CreatedAt
	return true, nil
}

func (q *TaskQueueSQLite) Claim(ctx context.Context, types ...taskDomain.TaskType) (*taskDomain.WorkerTask, error) {
	now := sharedSQLite.ToMillis(q.clock.Now())
	args := []any{now, now}
	filter := ""
	if len(types) > 0 {
		marks := make([]string, len(types))
		for i, t := range types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		filter = " AND task_type IN (" + strings.Join(marks, ", ") + ")"
	}

	row := q.db.QueryRowContext(ctx,
		`UPDATE worker_tasks
		 SET status = 'processing', updated_at = ?
		 WHERE id = (
			SELECT id FROM worker_tasks
			WHERE status = 'pending' AND available_at <= ?`+filter+`
			ORDER BY priority DESC, created_at ASC, rowid ASC
			LIMIT 1
		 ) AND status = 'pending'
		 RETURNING `+taskColumns,
		args...,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sharedSQLite.MapError(err)
	}
	return task, nil
}

func (q *TaskQueueSQLite) Complete(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE worker_tasks SET status = 'completed', updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		sharedSQLite.ToMillis(q.clock.Now()), id,
	)
	if err != nil {
		return sharedSQLite.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return q.explainMiss(ctx, id)
	}
	return nil
}

func (q *TaskQueueSQLite) Fail(ctx context.Context, id string, opts sharedDomain.FailOptions) (taskDomain.TaskStatus, error) {
	now := q.clock.Now()
	var status string
	err := q.db.QueryRowContext(ctx,
		`UPDATE worker_tasks
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 < max_attempts THEN 'pending' ELSE 'failed' END,
		     available_at = CASE WHEN attempts + 1 < max_attempts THEN ? ELSE available_at END,
		     last_error = ?,
		     updated_at = ?
		 WHERE id = ? AND status = 'processing'
		 RETURNING status`,
		sharedSQLite.ToMillis(now.Add(opts.RetryDelay)), sharedDomain.TruncateError(opts.Error),
		sharedSQLite.ToMillis(now), id,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", q.explainMiss(ctx, id)
	}
	if err != nil {
		return "", sharedSQLite.MapError(err)
	}
	return taskDomain.TaskStatus(status), nil
}

func (q *TaskQueueSQLite) CountByStatus(ctx context.Context, status taskDomain.TaskStatus) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM worker_tasks WHERE status = ?`, string(status),
	).Scan(&n); err != nil {
		return 0, sharedSQLite.MapError(err)
	}
	return n, nil
}

// GetByKey devuelve la tarea con esa idempotency key.
func (q *TaskQueueSQLite) GetByKey(ctx context.Context, key string) (*taskDomain.WorkerTask, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM worker_tasks WHERE idempotency_key = ?`, key)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, taskDomain.ErrTaskNotFound
	}
	if err != nil {
		return nil, sharedSQLite.MapError(err)
	}
	return task, nil
}

func (q *TaskQueueSQLite) explainMiss(ctx context.Context, id string) error {
	var current string
	err := q.db.QueryRowContext(ctx, `SELECT status FROM worker_tasks WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", taskDomain.ErrTaskNotFound, id)
	}
	if err != nil {
		return sharedSQLite.MapError(err)
	}
	return fmt.Errorf("%w: task %s is %s", sharedDomain.ErrInvalidTransition, id, current)
}

func scanTask(row *sql.Row) (*taskDomain.WorkerTask, error) {
	var (
		task                                taskDomain.WorkerTask
		taskType, payload, status           string
		lastError                           sql.NullString
		availableAt, createdAt, updatedAtMs int64
	)
	if err := row.Scan(&task.ID, &taskType, &payload, &task.Priority, &status, &availableAt,
		&task.Attempts, &task.MaxAttempts, &task.IdempotencyKey, &lastError, &createdAt, &updatedAtMs); err != nil {
		return nil, err
	}
	task.TaskType = taskDomain.TaskType(taskType)
	task.Payload = []byte(payload)
	task.Status = taskDomain.TaskStatus(status)
	task.LastError = lastError.String
	task.AvailableAt = sharedSQLite.FromMillis(availableAt)
	task.CreatedAt = sharedSQLite.FromMillis(createdAt)
	task.UpdatedAt = sharedSQLite.FromMillis(updatedAtMs)
	return &task, nil
}

// Verificación en tiempo de compilación.
var _ taskDomain.TaskQueue = (*TaskQueueSQLite)(nil)
