package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	sharedCache "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/cache"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
)

// SnapshotService calcula el score de un pack y lo deja en caché.
type SnapshotService struct {
	repo  domain.CatalogRepository
	cache sharedCache.Cache
	ttl   time.Duration
	clock clock.Clock
	log   *zap.Logger
}

func NewSnapshotService(repo domain.CatalogRepository, cache sharedCache.Cache, ttl time.Duration, clk clock.Clock, log *zap.Logger) *SnapshotService {
	if clk == nil {
		clk = clock.Real()
	}
	return &SnapshotService{repo: repo, cache: cache, ttl: ttl, clock: clk, log: log}
}

// Refresh recalcula el snapshot desde el store y lo escribe en caché.
// Un fallo de la caché no invalida el cálculo.
func (s *SnapshotService) Refresh(ctx context.Context, packID string) (*domain.PackScoreSnapshot, error) {
	snap, err := s.compute(ctx, packID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, domain.ScoreCacheKey(packID), snap, s.ttl); err != nil {
			s.log.Warn("⚠️ No se pudo guardar el snapshot en caché", zap.String("pack_id", packID), zap.Error(err))
		}
	}
	return snap, nil
}

// Get sirve el snapshot desde caché; en miss lo calcula y puebla la caché
// en background para no bloquear la lectura.
func (s *SnapshotService) Get(ctx context.Context, packID string) (*domain.PackScoreSnapshot, error) {
	if s.cache != nil {
		var snap domain.PackScoreSnapshot
		if ok, err := s.cache.Get(ctx, domain.ScoreCacheKey(packID), &snap); err == nil && ok {
			return &snap, nil
		}
	}
	snap, err := s.compute(ctx, packID)
	if err != nil {
		return nil, err
	}
	sharedCache.AsyncCacheSet(s.cache, domain.ScoreCacheKey(packID), *snap, s.ttl, s.log)
	return snap, nil
}

// compute lee las estadísticas del pack. Si el pack ya no existe purga el
// snapshot que pudiera quedar en caché.
func (s *SnapshotService) compute(ctx context.Context, packID string) (*domain.PackScoreSnapshot, error) {
	stats, err := s.repo.PackStats(ctx, packID)
	if err != nil {
		if errors.Is(err, domain.ErrPackNotFound) {
			sharedCache.AsyncCacheDelete(s.cache, domain.ScoreCacheKey(packID), s.log)
		}
		return nil, err
	}
	snap := domain.ComputeScore(stats, s.clock.Now())
	return &snap, nil
}
