package domain

import (
	"encoding/json"
	"fmt"
	"time"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	sharedBus "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/bus"
)

// TaskType identifica el trabajo que ejecuta el pool externo.
type TaskType string

const (
	TaskClassificationCycle TaskType = "classification_cycle"
	TaskCurationCycle       TaskType = "curation_cycle"
	TaskRebuildCycle        TaskType = "rebuild_cycle"
)

// Una WorkerTask sigue el mismo ciclo de vida que un evento del outbox.
type TaskStatus = sharedDomain.EventStatus

const (
	DefaultTaskPriority    = 50
	DefaultTaskMaxAttempts = 5
)

type WorkerTask struct {
	ID             string          `json:"id"`
	TaskType       TaskType        `json:"task_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Priority       int             `json:"priority"`
	Status         TaskStatus      `json:"status"`
	AvailableAt    time.Time       `json:"available_at"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	IdempotencyKey string          `json:"idempotency_key"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewWorkerTask construye una tarea serializando el payload a JSON.
func NewWorkerTask(taskType TaskType, priority int, idempotencyKey string, payload any) (*WorkerTask, error) {
	if taskType == "" || idempotencyKey == "" {
		return nil, ErrInvalidTask
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return &WorkerTask{
		TaskType:       taskType,
		Payload:        raw,
		Priority:       priority,
		MaxAttempts:    DefaultTaskMaxAttempts,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// DispatchKey es la idempotency key de una tarea derivada de un evento de dominio.
// Redespachar el mismo evento produce la misma clave y por tanto ninguna tarea nueva.
func DispatchKey(domainEventID string, taskType TaskType) string {
	return fmt.Sprintf("evt:%s:%s", domainEventID, taskType)
}

// TaskEnqueued se publica en el bus cuando se crea una tarea nueva, para que
// el pool de workers no tenga que esperar a su siguiente polling.
type TaskEnqueued struct {
	TaskID         string    `json:"task_id"`
	TaskType       TaskType  `json:"task_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	Priority       int       `json:"priority"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

func (e TaskEnqueued) PartitionKey() string {
	return string(e.TaskType)
}

var _ sharedBus.Keyer = TaskEnqueued{}

// GaugeWorkerTasksPending refleja cuántas WorkerTasks esperan al pool.
const GaugeWorkerTasksPending = "worker_tasks_pending"
