package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// MockFeatureGate devuelve lo que se le programe por feature.
type MockFeatureGate struct {
	mock.Mock
}

var _ domain.FeatureGate = (*MockFeatureGate)(nil)

func (m *MockFeatureGate) IsFeatureEnabled(ctx context.Context, name string, opts domain.FeatureOptions) bool {
	args := m.Called(ctx, name, opts)
	return args.Bool(0)
}

// StaticGate es un gate fijo para tests que no necesitan expectativas.
type StaticGate bool

func (g StaticGate) IsFeatureEnabled(context.Context, string, domain.FeatureOptions) bool {
	return bool(g)
}

// RecordingSink guarda el último valor de cada gauge.
type RecordingSink struct {
	mu     sync.Mutex
	gauges map[string]float64
}

var _ domain.MetricsSink = (*RecordingSink)(nil)

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{gauges: map[string]float64{}}
}

func (s *RecordingSink) SetGauge(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

func (s *RecordingSink) Gauge(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.gauges[name]
	return v, ok
}
