package bus

import "context"

// Keyer lo implementan los eventos que necesitan una clave de partición estable.
type Keyer interface {
	PartitionKey() string
}

// EventBus publica eventos de integración. Topic y formato los decide cada adapter.
type EventBus interface {
	Publish(ctx context.Context, event interface{}) error
}
