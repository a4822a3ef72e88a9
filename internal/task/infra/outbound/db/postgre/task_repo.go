package postgre

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	sharedPostgres "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/postgres"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
)

const taskColumns = `t.id::text, t.task_type, t.payload::text, t.priority, t.status, t.available_at, t.attempts,
	t.max_attempts, t.idempotency_key, t.last_error, t.created_at, t.updated_at`

// TaskQueuePostgres implementa taskDomain.TaskQueue. Claim usa FOR UPDATE SKIP LOCKED.
type TaskQueuePostgres struct {
	db    *sql.DB
	clock clock.Clock
}

func NewTaskQueuePostgres(db *sql.DB, clk clock.Clock) *TaskQueuePostgres {
	if clk == nil {
		clk = clock.Real()
	}
	return &TaskQueuePostgres{db: db, clock: clk}
}

func (q *TaskQueuePostgres) Enqueue(ctx context.Context, task *taskDomain.WorkerTask) (bool, error) {
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
		 VALUES ($1, $2, $3::jsonb, $4, 'pending', $5, 0, $6, $7, $8, $8)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		id, string(task.TaskType), payload, task.Priority, task.AvailableAt, task.MaxAttempts,
		task.IdempotencyKey, now,
	)
	if err != nil {
		return false, sharedPostgres.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	task.ID = id
	task.Status = sharedDomain.StatusPending
	task.Attempts = 0
	task.CreatedAt, task.UpdatedAt = now, now
	return true, nil
}

func (q *TaskQueuePostgres) Claim(ctx context.Context, types ...taskDomain.TaskType) (*taskDomain.WorkerTask, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	row := q.db.QueryRowContext(ctx,
		`UPDATE worker_tasks t
		 SET status = 'processing', updated_at = $1
		 FROM (
			SELECT id FROM worker_tasks
			WHERE status = 'pending' AND available_at <= $1
			  AND (cardinality($2::text[]) = 0 OR task_type = ANY($2::text[]))
			ORDER BY priority DESC, created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 ) next
		 WHERE t.id = next.id AND t.status = 'pending'
		 RETURNING `+taskColumns,
		q.clock.Now(), names,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sharedPostgres.MapError(err)
	}
	return task, nil
}

func (q *TaskQueuePostgres) Complete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", taskDomain.ErrTaskNotFound, id)
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE worker_tasks SET status = 'completed', updated_at = $1
		 WHERE id = $2 AND status = 'processing'`,
		q.clock.Now(), id,
	)
	if err != nil {
		return sharedPostgres.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return q.explainMiss(ctx, id)
	}
	return nil
}

func (q *TaskQueuePostgres) Fail(ctx context.Context, id string, opts sharedDomain.FailOptions) (taskDomain.TaskStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %s", taskDomain.ErrTaskNotFound, id)
	}
	now := q.clock.Now()
	var status string
	err := q.db.QueryRowContext(ctx,
		`UPDATE worker_tasks
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 < max_attempts THEN 'pending' ELSE 'failed' END,
		     available_at = CASE WHEN attempts + 1 < max_attempts THEN $1 ELSE available_at END,
		     last_error = $2,
		     updated_at = $3
		 WHERE id = $4 AND status = 'processing'
		 RETURNING status`,
		now.Add(opts.RetryDelay), sharedDomain.TruncateError(opts.Error), now, id,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", q.explainMiss(ctx, id)
	}
	if err != nil {
		return "", sharedPostgres.MapError(err)
	}
	return taskDomain.TaskStatus(status), nil
}

func (q *TaskQueuePostgres) CountByStatus(ctx context.Context, status taskDomain.TaskStatus) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM worker_tasks WHERE status = $1`, string(status),
	).Scan(&n); err != nil {
		return 0, sharedPostgres.MapError(err)
	}
	return n, nil
}

func (q *TaskQueuePostgres) explainMiss(ctx context.Context, id string) error {
	var current string
	err := q.db.QueryRowContext(ctx, `SELECT status FROM worker_tasks WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", taskDomain.ErrTaskNotFound, id)
	}
	if err != nil {
		return sharedPostgres.MapError(err)
	}
	return fmt.Errorf("%w: task %s is %s", sharedDomain.ErrInvalidTransition, id, current)
}

func scanTask(row *sql.Row) (*taskDomain.WorkerTask, error) {
	var (
		task                      taskDomain.WorkerTask
		taskType, payload, status string
		lastError                 sql.NullString
	)
	if err := row.Scan(&task.ID, &taskType, &payload, &task.Priority, &status, &task.AvailableAt,
		&task.Attempts, &task.MaxAttempts, &task.IdempotencyKey, &lastError, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	task.TaskType = taskDomain.TaskType(taskType)
	task.Payload = []byte(payload)
	task.Status = taskDomain.TaskStatus(status)
	task.LastError = lastError.String
	task.AvailableAt = task.AvailableAt.UTC()
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

// Verificación en tiempo de compilación.
var _ taskDomain.TaskQueue = (*TaskQueuePostgres)(nil)
