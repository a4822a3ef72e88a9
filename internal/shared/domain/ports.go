package domain

import "context"

// FeatureOptions parametriza una decisión del Feature Gate.
type FeatureOptions struct {
	// Fallback se usa cuando el flag no está definido o su fuente falla.
	Fallback bool
	// SubjectKey fija el bucket de rollout; la misma clave siempre cae en el mismo bucket.
	SubjectKey string
}

// FeatureGate decide si una feature está activa para un sujeto.
type FeatureGate interface {
	IsFeatureEnabled(ctx context.Context, name string, opts FeatureOptions) bool
}

// MetricsSink recibe gauges.
type MetricsSink interface {
	SetGauge(name string, value float64)
}

// Nombres de features y gauges del pipeline.
const (
	FeatureDomainEventOutbox   = "domain_event_outbox"
	FeatureDomainEventConsumer = "domain_event_consumer"

	GaugeOutboxPending    = "domain_event_outbox_pending"
	GaugeOutboxProcessing = "domain_event_outbox_processing"
	GaugeOutboxFailed     = "domain_event_outbox_failed"
)
