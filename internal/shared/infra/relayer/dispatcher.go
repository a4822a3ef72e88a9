package relayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	sharedBus "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/bus"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/utils"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
)

// Prioridades de las tareas derivadas de eventos.
const (
	PriorityClassification = 80
	PriorityCuration       = 65
	PriorityRebuild        = 60
)

const notifyTimeout = 2 * time.Second

// PackResolver encuentra los packs que contienen un asset.
type PackResolver interface {
	PackIDsForAsset(ctx context.Context, assetID string) ([]string, error)
}

// SnapshotTrigger pide un refresco (por lotes, asíncrono) del snapshot de score de los packs.
type SnapshotTrigger interface {
	Trigger(packIDs ...string)
}

// Dispatcher traduce un evento reclamado en sus efectos: encolar WorkerTasks
// y disparar refrescos de snapshot. Los tipos desconocidos no hacen nada.
type Dispatcher struct {
	tasks     taskDomain.TaskQueue
	packs     PackResolver
	snapshots SnapshotTrigger
	bus       sharedBus.EventBus
	log       *zap.Logger
}

// NewDispatcher. bus puede ser nil: entonces no se notifica al pool de workers.
func NewDispatcher(tasks taskDomain.TaskQueue, packs PackResolver, snapshots SnapshotTrigger, bus sharedBus.EventBus, log *zap.Logger) *Dispatcher {
	return &Dispatcher{tasks: tasks, packs: packs, snapshots: snapshots, bus: bus, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, evt domain.DomainEvent) error {
	decoded, err := domain.DecodeEvent(evt)
	if err != nil {
		return fmt.Errorf("decode event %s: %w", evt.ID, err)
	}

	switch e := decoded.(type) {
	case domain.StickerAssetCreated:
		return d.enqueue(ctx, evt, taskDomain.TaskClassificationCycle, PriorityClassification, map[string]any{
			"asset_id": e.AssetID,
		})

	case domain.StickerClassified:
		packIDs := ResolvePacksOrEmpty(ctx, d.packs, e.AssetID, d.log)
		d.trigger(packIDs...)
		return d.enqueue(ctx, evt, taskDomain.TaskCurationCycle, PriorityCuration, map[string]any{
			"asset_id": e.AssetID,
			"category": e.Category,
			"pack_ids": packIDs,
		})

	case domain.PackUpdated:
		d.trigger(e.PackID)
		return d.enqueue(ctx, evt, taskDomain.TaskRebuildCycle, PriorityRebuild, map[string]any{
			"pack_id": e.PackID,
		})

	case domain.EngagementRecorded:
		d.trigger(e.PackID)
		return nil

	default:
		d.log.Debug("Tipo de evento sin handler, se ignora",
			zap.String("event_id", evt.ID), zap.String("event_type", string(decoded.Kind())))
		return nil
	}
}

// ResolvePacksOrEmpty aplica la política degradada de búsqueda de packs: si la
// consulta falla se sigue con una lista vacía (el curation_cycle se encola igual)
// y el fallo queda registrado.
func ResolvePacksOrEmpty(ctx context.Context, resolver PackResolver, assetID string, log *zap.Logger) []string {
	if resolver == nil {
		return []string{}
	}
	ids, err := resolver.PackIDsForAsset(ctx, assetID)
	if err != nil {
		log.Warn("⚠️ No se pudieron resolver packs del asset, se continúa sin packs",
			zap.String("asset_id", assetID), zap.Error(err))
		return []string{}
	}
	return utils.Dedupe(ids)
}

func (d *Dispatcher) trigger(packIDs ...string) {
	packIDs = utils.Dedupe(packIDs)
	if d.snapshots == nil || len(packIDs) == 0 {
		return
	}
	d.snapshots.Trigger(packIDs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, evt domain.DomainEvent, taskType taskDomain.TaskType, priority int, extra map[string]any) error {
	payload := map[string]any{
		"reason":          "domain_event",
		"domain_event_id": evt.ID,
		"event_type":      string(domain.NormalizeEventType(string(evt.EventType))),
		"aggregate_type":  evt.AggregateType,
		"aggregate_id":    evt.AggregateID,
	}
	for k, v := range extra {
		payload[k] = v
	}

	key := taskDomain.DispatchKey(evt.ID, taskType)
	task, err := taskDomain.NewWorkerTask(taskType, priority, key, payload)
	if err != nil {
		return err
	}

	created, err := d.tasks.Enqueue(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	if !created {
		d.log.Debug("WorkerTask ya existente, redelivery ignorado",
			zap.String("event_id", evt.ID), zap.String("idempotency_key", key))
		return nil
	}

	d.log.Info("🧩 WorkerTask encolada",
		zap.String("event_id", evt.ID),
		zap.String("task_type", string(taskType)),
		zap.String("idempotency_key", key))
	d.notify(task)
	return nil
}

// notify avisa al pool de workers sin bloquear el ciclo; si falla, el pool
// la encontrará igualmente en su siguiente polling.
func (d *Dispatcher) notify(task *taskDomain.WorkerTask) {
	if d.bus == nil {
		return
	}
	msg := taskDomain.TaskEnqueued{
		TaskID:         task.ID,
		TaskType:       task.TaskType,
		IdempotencyKey: task.IdempotencyKey,
		Priority:       task.Priority,
		EnqueuedAt:     task.CreatedAt,
	}
	utils.Detached(d.log, "notify:"+task.IdempotencyKey, notifyTimeout, func(ctx context.Context) error {
		return d.bus.Publish(ctx, msg)
	})
}
