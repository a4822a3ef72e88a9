package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
)

// EventHandler procesa un evento reclamado. Un error provoca Fail con reintento.
type EventHandler interface {
	Dispatch(ctx context.Context, evt domain.DomainEvent) error
}

// Config del Consumer Scheduler. Los ceros toman el valor por defecto y
// RetryDelay se acota a [MinRetryDelay, MaxRetryDelay].
type Config struct {
	Enabled      bool
	StartupDelay time.Duration
	PollInterval time.Duration
	RetryDelay   time.Duration
	CohortKey    string
	// CycleTimeout acota un ciclo completo (claim + dispatch + complete/fail).
	CycleTimeout time.Duration
	// StaleAfter: eventos en processing sin actividad durante este tiempo vuelven a pending.
	StaleAfter time.Duration
	// StaleCheckEvery: cada cuánto se busca trabajo abandonado.
	StaleCheckEvery time.Duration
}

// Rango admitido para RetryDelay, el mismo que aplica internal/config.
const (
	MinRetryDelay = 5 * time.Second
	MaxRetryDelay = time.Hour
)

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		StartupDelay:    8 * time.Second,
		PollInterval:    2 * time.Second,
		RetryDelay:      45 * time.Second,
		CohortKey:       "omnizap-local",
		CycleTimeout:    30 * time.Second,
		StaleAfter:      10 * time.Minute,
		StaleCheckEvery: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StartupDelay <= 0 {
		c.StartupDelay = d.StartupDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	switch {
	case c.RetryDelay <= 0:
		c.RetryDelay = d.RetryDelay
	case c.RetryDelay < MinRetryDelay:
		c.RetryDelay = MinRetryDelay
	case c.RetryDelay > MaxRetryDelay:
		c.RetryDelay = MaxRetryDelay
	}
	if c.CohortKey == "" {
		c.CohortKey = d.CohortKey
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.StaleCheckEvery <= 0 {
		c.StaleCheckEvery = d.StaleCheckEvery
	}
	return c
}

// CycleResult describe qué hizo un ciclo de polling.
type CycleResult string

const (
	CycleBusy             CycleResult = "busy"
	CycleDisabled         CycleResult = "disabled"
	CycleGated            CycleResult = "gated"
	CycleIdle             CycleResult = "idle"
	CycleCompleted        CycleResult = "completed"
	CycleFailed           CycleResult = "failed"
	CycleStoreUnavailable CycleResult = "store_unavailable"
	CycleError            CycleResult = "error"
)

// Scheduler es el consumidor del outbox: reclama un evento por ciclo, lo despacha
// y resuelve su estado. Varias instancias (incluso en procesos distintos) pueden
// correr a la vez; la exclusión la garantiza el claim atómico del store.
type Scheduler struct {
	repo    domain.OutboxRepository
	handler EventHandler
	gate    domain.FeatureGate
	metrics domain.MetricsSink
	clock   clock.Clock
	cfg     Config
	log     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	polling     atomic.Bool
	lastRelease time.Time
}

func NewScheduler(
	repo domain.OutboxRepository,
	handler EventHandler,
	gate domain.FeatureGate,
	metrics domain.MetricsSink,
	cfg Config,
	log *zap.Logger,
) *Scheduler {
	return &Scheduler{
		repo:    repo,
		handler: handler,
		gate:    gate,
		metrics: metrics,
		clock:   clock.Real(),
		cfg:     cfg.withDefaults(),
		log:     log,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *Scheduler) WithClock(c clock.Clock) *Scheduler {
	s.clock = c
	return s
}

// Start arranca el bucle: espera StartupDelay, hace un primer ciclo y luego uno
// cada PollInterval. Llamarlo con el scheduler ya arrancado no hace nada.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)

	s.log.Info("🚀 Consumer de eventos de dominio iniciado",
		zap.Duration("startup_delay", s.cfg.StartupDelay),
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.String("cohort_key", s.cfg.CohortKey))
}

// Stop cancela los timers y espera a que termine el ciclo en curso, si lo hay.
// El ciclo en curso no se interrumpe. Es idempotente.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("🛑 Consumer de eventos de dominio detenido")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	startup := time.NewTimer(s.cfg.StartupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-startup.C:
	}

	s.PollOnce(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce ejecuta un ciclo. Si ya hay uno en curso devuelve CycleBusy sin hacer nada.
// La cancelación de ctx no interrumpe el ciclo: solo lo acota CycleTimeout.
func (s *Scheduler) PollOnce(ctx context.Context) CycleResult {
	if !s.polling.CompareAndSwap(false, true) {
		return CycleBusy
	}
	defer s.polling.Store(false)

	if !s.cfg.Enabled {
		return CycleDisabled
	}
	if s.gate != nil && !s.gate.IsFeatureEnabled(ctx, domain.FeatureDomainEventConsumer, domain.FeatureOptions{
		Fallback:   true,
		SubjectKey: "consumer:" + s.cfg.CohortKey,
	}) {
		return CycleGated
	}

	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
	defer cancel()
	defer s.refreshGauges(cycleCtx)

	s.maybeReleaseStale(cycleCtx)

	evt, err := s.repo.Claim(cycleCtx)
	if err != nil {
		if errors.Is(err, domain.ErrStorageNotProvisioned) {
			s.log.Debug("Outbox no provisionado, ciclo omitido", zap.Error(err))
			return CycleStoreUnavailable
		}
		s.log.Warn("⚠️ Error al reclamar evento del outbox", zap.Error(err))
		return CycleError
	}
	if evt == nil {
		return CycleIdle
	}

	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.EventType)),
		zap.String("aggregate_type", evt.AggregateType),
		zap.String("aggregate_id", evt.AggregateID),
		zap.Int("attempts", evt.Attempts),
	}

	if err := s.dispatch(cycleCtx, *evt); err != nil {
		s.log.Warn("⚠️ Falló el procesamiento del evento de dominio", append(fields, zap.Error(err))...)

		status, failErr := s.repo.Fail(cycleCtx, evt.ID, domain.FailOptions{
			Error:      err.Error(),
			RetryDelay: s.cfg.RetryDelay,
		})
		switch {
		case failErr != nil:
			s.log.Warn("⚠️ No se pudo registrar el fallo del evento", append(fields, zap.Error(failErr))...)
		case status == domain.StatusFailed:
			s.log.Error("❌ Evento agotó sus reintentos", fields...)
		}
		return CycleFailed
	}

	if err := s.repo.Complete(cycleCtx, evt.ID); err != nil {
		s.log.Warn("⚠️ No se pudo marcar el evento como completado", append(fields, zap.Error(err))...)
		return CycleError
	}
	s.log.Debug("✅ Evento procesado", fields...)
	return CycleCompleted
}

// dispatch aísla panics del handler para convertirlos en un fallo reintentable.
func (s *Scheduler) dispatch(ctx context.Context, evt domain.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while dispatching: %v", r)
		}
	}()
	return s.handler.Dispatch(ctx, evt)
}

func (s *Scheduler) maybeReleaseStale(ctx context.Context) {
	now := s.clock.Now()
	if !s.lastRelease.IsZero() && now.Sub(s.lastRelease) < s.cfg.StaleCheckEvery {
		return
	}
	s.lastRelease = now

	n, err := s.repo.ReleaseStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageNotProvisioned) {
			s.log.Warn("⚠️ Error liberando eventos abandonados", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.log.Warn("♻️ Eventos abandonados en processing devueltos a pending", zap.Int("count", n))
	}
}

func (s *Scheduler) refreshGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	gauges := []struct {
		name   string
		status domain.EventStatus
	}{
		{domain.GaugeOutboxPending, domain.StatusPending},
		{domain.GaugeOutboxProcessing, domain.StatusProcessing},
		{domain.GaugeOutboxFailed, domain.StatusFailed},
	}
	for _, g := range gauges {
		n, err := s.repo.CountByStatus(ctx, g.status)
		if err != nil {
			n = 0
		}
		s.metrics.SetGauge(g.name, float64(n))
	}
}
