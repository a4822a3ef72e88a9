package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockPackResolver simula la búsqueda de packs de un asset.
type MockPackResolver struct {
	mock.Mock
}

func (m *MockPackResolver) PackIDsForAsset(ctx context.Context, assetID string) ([]string, error) {
	args := m.Called(ctx, assetID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// RecordingTrigger acumula los packs pedidos para refresco.
type RecordingTrigger struct {
	mu    sync.Mutex
	Calls [][]string
}

func (r *RecordingTrigger) Trigger(packIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, append([]string(nil), packIDs...))
}

func (r *RecordingTrigger) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.Calls {
		out = append(out, c...)
	}
	return out
}

// MockEventBus simula el bus de integración.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, event interface{}) error {
	return m.Called(ctx, event).Error(0)
}
