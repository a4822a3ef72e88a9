package metrics

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// PrometheusSink registra un gauge por nombre la primera vez que se usa.
type PrometheusSink struct {
	reg       prometheus.Registerer
	namespace string

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

func NewPrometheusSink(reg prometheus.Registerer, namespace string) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusSink{reg: reg, namespace: namespace, gauges: make(map[string]prometheus.Gauge)}
}

func (s *PrometheusSink) SetGauge(name string, value float64) {
	g := s.gauge(name)
	if g != nil {
		g.Set(value)
	}
}

func (s *PrometheusSink) gauge(name string) prometheus.Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.gauges[name]; ok {
		return g
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: s.namespace,
		Name:      sanitizeMetricName(name),
		Help:      "Gauge reported by omnizap: " + name,
	})
	if err := s.reg.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil
		}
		g = existing
	}
	s.gauges[name] = g
	return g
}

// sanitizeMetricName deja solo [a-zA-Z0-9_].
func sanitizeMetricName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

var _ domain.MetricsSink = (*PrometheusSink)(nil)
