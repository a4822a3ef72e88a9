package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
)

// TaskCounter es lo que el consumidor necesita de la cola.
type TaskCounter interface {
	CountByStatus(ctx context.Context, status taskDomain.TaskStatus) (int, error)
}

// TaskConsumer escucha los avisos TaskEnqueued y mantiene al día el gauge de
// tareas pendientes. La ejecución de las tareas es cosa del pool externo.
type TaskConsumer struct {
	queue   TaskCounter
	metrics sharedDomain.MetricsSink
	log     *zap.Logger
}

func NewTaskConsumer(queue TaskCounter, metrics sharedDomain.MetricsSink, logger *zap.Logger) *TaskConsumer {
	return &TaskConsumer{
		queue:   queue,
		metrics: metrics,
		log:     logger,
	}
}

// HandleMessage es el punto de entrada para un nuevo mensaje.
func (c *TaskConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	var evt taskDomain.TaskEnqueued
	if err := json.Unmarshal(payload, &evt); err != nil {
		c.log.Warn("Failed to unmarshal TaskEnqueued", zap.String("key", key), zap.Error(err))
		return
	}
	if evt.TaskID == "" || evt.TaskType == "" {
		c.log.Warn("TaskEnqueued incompleto ignorado", zap.String("key", key))
		return
	}

	c.log.Debug("📬 Tarea encolada para el pool",
		zap.String("task_id", evt.TaskID),
		zap.String("task_type", string(evt.TaskType)),
		zap.Int("priority", evt.Priority))

	c.refreshPending(ctx)
}

func (c *TaskConsumer) refreshPending(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	ctxCount, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	n, err := c.queue.CountByStatus(ctxCount, sharedDomain.StatusPending)
	if err != nil {
		c.log.Debug("No se pudo contar tareas pendientes", zap.Error(err))
		return
	}
	c.metrics.SetGauge(taskDomain.GaugeWorkerTasksPending, float64(n))
}

// BackgroundConsumerChan consume los avisos del bus en memoria hasta que ctx se cancela.
func BackgroundConsumerChan(ctx context.Context, ch <-chan []byte, consumer *TaskConsumer) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				consumer.log.Info("TaskConsumer stopped")
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				// La 'key' no es relevante en el bus en memoria.
				consumer.HandleMessage(ctx, "", payload)
			}
		}
	}()
}
