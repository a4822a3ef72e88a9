package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/utils"
)

// payloadKeyPrefix es cuántos caracteres del payload JSON entran en la clave por defecto.
const payloadKeyPrefix = 80

// Input es un evento a publicar. Priority nil y MaxAttempts 0 usan los valores por defecto.
type Input struct {
	EventType      string
	AggregateType  string
	AggregateID    string
	Payload        any
	IdempotencyKey string
	// Priority nil toma domain.DefaultEventPriority; un 0 explícito se respeta.
	Priority       *int
	AvailableAt    time.Time
	MaxAttempts    int
}

type options struct {
	tx    domain.Tx
	force bool
}

type Option func(*options)

// WithTx inserta el evento en la transacción del llamador.
func WithTx(tx domain.Tx) Option {
	return func(o *options) { o.tx = tx }
}

// Force ignora el Feature Gate.
func Force() Option {
	return func(o *options) { o.force = true }
}

// Publisher valida eventos de dominio y los inserta en el outbox.
// Publish nunca devuelve error: publicar no puede abortar la operación de negocio.
type Publisher struct {
	repo domain.OutboxRepository
	gate domain.FeatureGate
	log  *zap.Logger
}

func NewPublisher(repo domain.OutboxRepository, gate domain.FeatureGate, log *zap.Logger) *Publisher {
	return &Publisher{repo: repo, gate: gate, log: log}
}

// Publish devuelve true si el evento quedó en el outbox (o ya estaba, por idempotencia).
func (p *Publisher) Publish(ctx context.Context, in Input, opts ...Option) bool {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	eventType := domain.NormalizeEventType(in.EventType)
	aggregateType := strings.TrimSpace(in.AggregateType)
	aggregateID := strings.TrimSpace(in.AggregateID)
	if eventType == "" || aggregateType == "" || aggregateID == "" {
		p.log.Debug("Evento descartado: faltan campos obligatorios",
			zap.String("event_type", string(eventType)),
			zap.String("aggregate_type", aggregateType),
			zap.String("aggregate_id", aggregateID))
		return false
	}

	fields := []zap.Field{
		zap.String("event_type", string(eventType)),
		zap.String("aggregate_type", aggregateType),
		zap.String("aggregate_id", aggregateID),
	}

	if !o.force && p.gate != nil {
		enabled := p.gate.IsFeatureEnabled(ctx, domain.FeatureDomainEventOutbox, domain.FeatureOptions{
			Fallback:   true,
			SubjectKey: aggregateType + ":" + aggregateID,
		})
		if !enabled {
			p.log.Debug("Evento descartado por feature gate", fields...)
			return false
		}
	}

	payload, err := encodePayload(in.Payload)
	if err != nil {
		p.log.Warn("⚠️ Payload no serializable, evento descartado", append(fields, zap.Error(err))...)
		return false
	}
	if _, err := domain.DecodePayload(eventType, aggregateID, payload); err != nil {
		p.log.Warn("⚠️ Payload inválido para el tipo de evento", append(fields, zap.Error(err))...)
		return false
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = DefaultIdempotencyKey(eventType, aggregateType, aggregateID, payload)
	}

	evt := &domain.DomainEvent{
		EventType:      eventType,
		AggregateType:  aggregateType,
		AggregateID:    aggregateID,
		Payload:        payload,
		Priority:       priorityOrDefault(in.Priority),
		AvailableAt:    in.AvailableAt,
		MaxAttempts:    utils.Ternary(in.MaxAttempts <= 0, domain.DefaultMaxAttempts, in.MaxAttempts),
		IdempotencyKey: key,
	}

	created, err := p.repo.Enqueue(ctx, o.tx, evt)
	if err != nil {
		if errors.Is(err, domain.ErrStorageNotProvisioned) {
			p.log.Warn("⚠️ Outbox no provisionado, evento no publicado", append(fields, zap.Error(err))...)
		} else {
			p.log.Error("❌ Error insertando evento en outbox", append(fields, zap.Error(err))...)
		}
		return false
	}

	if created {
		p.log.Debug("📨 Evento encolado", append(fields, zap.String("event_id", evt.ID), zap.String("idempotency_key", key))...)
	} else {
		p.log.Debug("Evento duplicado ignorado", append(fields, zap.String("idempotency_key", key))...)
	}
	return true
}

// DefaultIdempotencyKey = tipo:agregado:id:<primeros 80 caracteres del payload JSON>, máximo 180.
func DefaultIdempotencyKey(eventType domain.EventType, aggregateType, aggregateID string, payload json.RawMessage) string {
	key := string(eventType) + ":" + aggregateType + ":" + aggregateID + ":" +
		utils.Truncate(string(payload), payloadKeyPrefix)
	return utils.Truncate(key, domain.MaxIdempotencyKeyLength)
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func priorityOrDefault(p *int) int {
	if p == nil {
		return domain.DefaultEventPriority
	}
	return *p
}
