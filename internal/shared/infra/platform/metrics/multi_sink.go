package metrics

import "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"

// MultiSink reenvía cada gauge a todos los sinks configurados.
type MultiSink []domain.MetricsSink

func (m MultiSink) SetGauge(name string, value float64) {
	for _, s := range m {
		if s != nil {
			s.SetGauge(name, value)
		}
	}
}

// NopSink descarta todo.
type NopSink struct{}

func (NopSink) SetGauge(string, float64) {}

var (
	_ domain.MetricsSink = MultiSink(nil)
	_ domain.MetricsSink = NopSink{}
)
