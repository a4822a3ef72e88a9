package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPrometheusSink_SetGauge(t *testing.T) {
	// ARRANGE
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg, "omnizap")

	// ACT
	sink.SetGauge("domain_event_outbox_pending", 3)
	sink.SetGauge("domain_event_outbox_pending", 7)
	sink.SetGauge("domain-event.outbox failed", 1)

	// ASSERT
	assert.Equal(t, 7.0, testutil.ToFloat64(sink.gauges["domain_event_outbox_pending"]))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"omnizap_domain_event_outbox_pending",
		"omnizap_domain_event_outbox_failed",
	}, names)
}

func TestPrometheusSink_ReusesAlreadyRegisteredGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusSink(reg, "omnizap")
	second := NewPrometheusSink(reg, "omnizap")

	first.SetGauge("depth", 1)
	second.SetGauge("depth", 5)

	assert.Equal(t, 5.0, testutil.ToFloat64(first.gauges["depth"]))
}

func TestSanitizeMetricName(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeMetricName("a-b.c"))
	assert.Equal(t, "_9lives", sanitizeMetricName("9lives"))
}

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]GaugeSample
	err     error
}

func (w *fakeWriter) WriteSamples(_ context.Context, samples []GaugeSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, samples)
	return nil
}

func TestHistorySink_FlushAndRetry(t *testing.T) {
	// ARRANGE
	writer := &fakeWriter{err: errors.New("clickhouse down")}
	sink := NewHistorySink(writer, time.Second, 3, zap.NewNop())

	sink.SetGauge("a", 1)
	sink.SetGauge("b", 2)

	// ACT: la primera escritura falla y las muestras vuelven al buffer
	require.Error(t, sink.Flush(context.Background()))
	sink.SetGauge("c", 3)
	sink.SetGauge("d", 4)
	writer.err = nil
	require.NoError(t, sink.Flush(context.Background()))

	// ASSERT: solo se conservan las 3 más recientes
	require.Len(t, writer.batches, 1)
	var names []string
	for _, s := range writer.batches[0] {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"b", "c", "d"}, names)
	assert.NoError(t, sink.Flush(context.Background()))
	assert.Len(t, writer.batches, 1)
}

type recordingSink struct{ got map[string]float64 }

func (r *recordingSink) SetGauge(name string, v float64) { r.got[name] = v }

func TestMultiSink(t *testing.T) {
	a := &recordingSink{got: map[string]float64{}}
	b := &recordingSink{got: map[string]float64{}}

	MultiSink{a, nil, b, NopSink{}}.SetGauge("x", 2)

	assert.Equal(t, 2.0, a.got["x"])
	assert.Equal(t, 2.0, b.got["x"])
}
