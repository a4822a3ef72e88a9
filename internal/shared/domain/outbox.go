package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Tx es el handle de almacenamiento del llamador. Cuando se pasa, el evento se
// inserta en la misma transacción que la mutación de negocio.
type Tx = *sql.Tx

// EventStatus es el estado de una fila de outbox (o de una WorkerTask).
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessing EventStatus = "processing"
	StatusCompleted  EventStatus = "completed"
	StatusFailed     EventStatus = "failed"
)

// AllStatuses en el orden en que se reportan.
var AllStatuses = []EventStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

const (
	DefaultEventPriority    = 50
	DefaultMaxAttempts      = 10
	MaxIdempotencyKeyLength = 180
	MaxLastErrorLength      = 2000
)

var (
	ErrStorageNotProvisioned = errors.New("storage not provisioned")
	ErrEventNotFound         = errors.New("outbox event not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
)

// IsTerminal indica si no hay transiciones posibles desde el estado.
func (s EventStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo valida el ciclo de vida:
// pending -> processing -> completed | failed | pending (reintento).
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusPending
	default:
		return false
	}
}

func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DomainEvent es una fila del outbox.
type DomainEvent struct {
	ID             string          `json:"id"`
	EventType      EventType       `json:"event_type"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Priority       int             `json:"priority"`
	Status         EventStatus     `json:"status"`
	AvailableAt    time.Time       `json:"available_at"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	IdempotencyKey string          `json:"idempotency_key"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FailOptions describe un fallo de procesamiento.
type FailOptions struct {
	Error      string
	RetryDelay time.Duration
}

// OutboxRepository es el contrato del Outbox Store.
//
// Todas las operaciones devuelven ErrStorageNotProvisioned (envuelto) junto con
// un valor cero cuando la tabla todavía no existe.
type OutboxRepository interface {
	// Enqueue inserta el evento o lo ignora si la idempotency key ya existe.
	// Devuelve true solo si se creó una fila nueva; en ese caso evt.ID queda asignado.
	Enqueue(ctx context.Context, tx Tx, evt *DomainEvent) (bool, error)
	// Claim toma de forma atómica el evento pendiente y vencido más prioritario.
	// Devuelve nil, nil si no hay nada que reclamar.
	Claim(ctx context.Context) (*DomainEvent, error)
	Complete(ctx context.Context, id string) error
	// Fail devuelve el estado resultante: pending (reintento) o failed (terminal).
	Fail(ctx context.Context, id string, opts FailOptions) (EventStatus, error)
	CountByStatus(ctx context.Context, status EventStatus) (int, error)
	// ReleaseStale devuelve a pending los eventos en processing sin actividad desde olderThan.
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)
	Get(ctx context.Context, id string) (*DomainEvent, error)
}

// TruncateError recorta un mensaje de error a MaxLastErrorLength runas.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxLastErrorLength {
		return msg
	}
	return string(r[:MaxLastErrorLength])
}
