package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/utils"
)

const asyncTimeout = 200 * time.Millisecond

// AsyncCacheSet actualiza la caché en background sin bloquear al llamador.
// La escritura no depende del contexto de la petición original.
func AsyncCacheSet(cache Cache, key string, value interface{}, ttl time.Duration, log *zap.Logger) <-chan struct{} {
	if cache == nil {
		return closed()
	}
	return utils.Detached(log, "cache.set:"+key, asyncTimeout, func(ctx context.Context) error {
		return cache.Set(ctx, key, value, ttl)
	})
}

// AsyncCacheDelete elimina de la caché en background.
func AsyncCacheDelete(cache Cache, key string, log *zap.Logger) <-chan struct{} {
	if cache == nil {
		return closed()
	}
	return utils.Detached(log, "cache.delete:"+key, asyncTimeout, func(ctx context.Context) error {
		return cache.Delete(ctx, key)
	})
}

func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
