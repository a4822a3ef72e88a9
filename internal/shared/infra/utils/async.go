package utils

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Detached ejecuta fn en una goroutine desacoplada del contexto del llamador,
// con su propio timeout. Los errores y panics se registran y no se propagan.
// Devuelve un canal que se cierra al terminar (útil en tests y en el apagado).
func Detached(log *zap.Logger, name string, timeout time.Duration, fn func(ctx context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Error("💥 Panic en tarea desacoplada",
					zap.String("task", name), zap.String("panic", fmt.Sprint(r)))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Warn("⚠️ Tarea desacoplada falló", zap.String("task", name), zap.Error(err))
		}
	}()
	return done
}
