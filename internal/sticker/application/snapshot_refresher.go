package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/utils"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
)

const (
	DefaultSnapshotDebounce = 250 * time.Millisecond
	snapshotFlushTimeout    = 10 * time.Second
)

// SnapshotWriter recalcula el snapshot de un pack.
type SnapshotWriter interface {
	Refresh(ctx context.Context, packID string) (*domain.PackScoreSnapshot, error)
}

// SnapshotRefresher agrupa las peticiones de refresco que llegan durante la
// ventana de debounce y las procesa juntas fuera del ciclo del consumer.
type SnapshotRefresher struct {
	writer   SnapshotWriter
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
	flushes sync.WaitGroup
}

func NewSnapshotRefresher(writer SnapshotWriter, debounce time.Duration, log *zap.Logger) *SnapshotRefresher {
	if debounce <= 0 {
		debounce = DefaultSnapshotDebounce
	}
	return &SnapshotRefresher{
		writer:   writer,
		debounce: debounce,
		log:      log,
		pending:  make(map[string]struct{}),
	}
}

// Trigger cumple relayer.SnapshotTrigger. No bloquea.
func (r *SnapshotRefresher) Trigger(packIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, id := range packIDs {
		if id != "" {
			r.pending[id] = struct{}{}
		}
	}
	if len(r.pending) > 0 && r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, r.flush)
	}
}

// Close procesa lo pendiente y espera a que terminen los refrescos en curso.
func (r *SnapshotRefresher) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	r.flush()
	r.flushes.Wait()
}

func (r *SnapshotRefresher) flush() {
	r.mu.Lock()
	r.timer = nil
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.pending = make(map[string]struct{})
	r.flushes.Add(1)
	r.mu.Unlock()

	sort.Strings(ids)
	done := utils.Detached(r.log, "snapshot.refresh", snapshotFlushTimeout, func(ctx context.Context) error {
		var errs []error
		for _, id := range ids {
			if _, err := r.writer.Refresh(ctx, id); err != nil && !errors.Is(err, domain.ErrPackNotFound) {
				errs = append(errs, fmt.Errorf("pack %s: %w", id, err))
			}
		}
		r.log.Debug("📊 Snapshots de packs refrescados", zap.Strings("pack_ids", ids))
		return errors.Join(errs...)
	})
	go func() {
		<-done
		r.flushes.Done()
	}()
}
