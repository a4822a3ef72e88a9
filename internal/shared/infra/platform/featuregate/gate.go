package featuregate

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// RolloutSource devuelve el porcentaje de rollout [0,100] de una feature.
// ok=false significa que la feature no está definida en la fuente.
type RolloutSource interface {
	Rollout(ctx context.Context, name string) (percent int, ok bool, err error)
}

// Gate implementa domain.FeatureGate con buckets deterministas por sujeto.
type Gate struct {
	source RolloutSource
	log    *zap.Logger
}

func NewGate(source RolloutSource, log *zap.Logger) *Gate {
	return &Gate{source: source, log: log}
}

// Bucket asigna un sujeto a [0,100) dentro de una feature. El mismo par
// feature:sujeto cae siempre en el mismo bucket; features distintas reparten
// a los sujetos de forma independiente.
func Bucket(feature, subjectKey string) int {
	return int(xxhash.Sum64String(feature+":"+subjectKey) % 100)
}

func (g *Gate) IsFeatureEnabled(ctx context.Context, name string, opts domain.FeatureOptions) bool {
	if g == nil || g.source == nil {
		return opts.Fallback
	}
	percent, ok, err := g.source.Rollout(ctx, name)
	if err != nil {
		g.log.Warn("⚠️ Feature flag no disponible, usando fallback",
			zap.String("feature", name), zap.Bool("fallback", opts.Fallback), zap.Error(err))
		return opts.Fallback
	}
	if !ok {
		return opts.Fallback
	}
	switch {
	case percent >= 100:
		return true
	case percent <= 0:
		return false
	default:
		return Bucket(name, opts.SubjectKey) < percent
	}
}

var _ domain.FeatureGate = (*Gate)(nil)
