package events

import (
	"context"
	"encoding/json"
	"sync"

	sharedBus "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/bus"
)

// InMemoryEventBus es el bus de un solo topic que se usa sin Kafka (local, tests).
// Los suscriptores reciben el JSON del evento; si su buffer está lleno el mensaje se descarta.
type InMemoryEventBus struct {
	subscribers []chan []byte
	mu          sync.RWMutex
	topic       string
}

func NewInMemoryEventBus(topic string) *InMemoryEventBus {
	return &InMemoryEventBus{topic: topic}
}

func (b *InMemoryEventBus) Topic() string { return b.topic }

func (b *InMemoryEventBus) Publish(ctx context.Context, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- payload:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// Subscribe registra un oyente con un buffer del tamaño indicado.
func (b *InMemoryEventBus) Subscribe(bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)
