package domain

import (
	"context"
	"errors"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
)

// TaskQueue es la cola durable de WorkerTasks. Comparte contrato con el outbox:
// ErrStorageNotProvisioned cuando la tabla no existe.
type TaskQueue interface {
	// Enqueue ignora duplicados por idempotency key; true solo si se creó la fila.
	Enqueue(ctx context.Context, task *WorkerTask) (bool, error)
	// Claim toma la tarea más prioritaria de los tipos indicados (todos si no se indica ninguno).
	Claim(ctx context.Context, types ...TaskType) (*WorkerTask, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, opts sharedDomain.FailOptions) (TaskStatus, error)
	CountByStatus(ctx context.Context, status TaskStatus) (int, error)
}
