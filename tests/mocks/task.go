package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
)

// InMemoryTaskQueue simula TaskQueue con deduplicación por idempotency key.
type InMemoryTaskQueue struct {
	Tasks map[string]*taskDomain.WorkerTask // por idempotency key
	mu    sync.Mutex
}

var _ taskDomain.TaskQueue = (*InMemoryTaskQueue)(nil)

func NewInMemoryTaskQueue() *InMemoryTaskQueue {
	return &InMemoryTaskQueue{Tasks: make(map[string]*taskDomain.WorkerTask)}
}

func (q *InMemoryTaskQueue) Enqueue(ctx context.Context, task *taskDomain.WorkerTask) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.Tasks[task.IdempotencyKey]; ok {
		return false, nil
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = sharedDomain.StatusPending
	q.Tasks[task.IdempotencyKey] = task
	return true, nil
}

func (q *InMemoryTaskQueue) Claim(ctx context.Context, types ...taskDomain.TaskType) (*taskDomain.WorkerTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var best *taskDomain.WorkerTask
	for _, t := range q.Tasks {
		if t.Status != sharedDomain.StatusPending || !matches(t.TaskType, types) {
			continue
		}
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}
	if best != nil {
		best.Status = sharedDomain.StatusProcessing
	}
	return best, nil
}

func (q *InMemoryTaskQueue) Complete(ctx context.Context, id string) error {
	return q.setStatus(id, sharedDomain.StatusCompleted)
}

func (q *InMemoryTaskQueue) Fail(ctx context.Context, id string, opts sharedDomain.FailOptions) (taskDomain.TaskStatus, error) {
	return sharedDomain.StatusFailed, q.setStatus(id, sharedDomain.StatusFailed)
}

func (q *InMemoryTaskQueue) CountByStatus(ctx context.Context, status taskDomain.TaskStatus) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

// ByKey devuelve la tarea con esa idempotency key.
func (q *InMemoryTaskQueue) ByKey(key string) (*taskDomain.WorkerTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.Tasks[key]
	return t, ok
}

func (q *InMemoryTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Tasks)
}

func (q *InMemoryTaskQueue) setStatus(id string, status taskDomain.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.Tasks {
		if t.ID == id {
			t.Status = status
			return nil
		}
	}
	return taskDomain.ErrTaskNotFound
}

func matches(taskType taskDomain.TaskType, types []taskDomain.TaskType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == taskType {
			return true
		}
	}
	return false
}

// MockTaskQueue para simular errores de la cola.
type MockTaskQueue struct {
	mock.Mock
}

var _ taskDomain.TaskQueue = (*MockTaskQueue)(nil)

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *taskDomain.WorkerTask) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskQueue) Claim(ctx context.Context, types ...taskDomain.TaskType) (*taskDomain.WorkerTask, error) {
	args := m.Called(ctx, types)
	task, _ := args.Get(0).(*taskDomain.WorkerTask)
	return task, args.Error(1)
}

func (m *MockTaskQueue) Complete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskQueue) Fail(ctx context.Context, id string, opts sharedDomain.FailOptions) (taskDomain.TaskStatus, error) {
	args := m.Called(ctx, id, opts)
	return args.Get(0).(taskDomain.TaskStatus), args.Error(1)
}

func (m *MockTaskQueue) CountByStatus(ctx context.Context, status taskDomain.TaskStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}
