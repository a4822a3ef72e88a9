package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// GaugeSample es una lectura puntual de un gauge.
type GaugeSample struct {
	Name       string
	Value      float64
	RecordedAt time.Time
}

// SampleWriter persiste un lote de muestras.
type SampleWriter interface {
	WriteSamples(ctx context.Context, samples []GaugeSample) error
}

// ClickHouseWriter escribe muestras en gauge_samples.
type ClickHouseWriter struct {
	db *sql.DB
}

func NewClickHouseWriter(addr, dbName string) (*ClickHouseWriter, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return &ClickHouseWriter{db: conn}, nil
}

// EnsureSchema crea la tabla de muestras si no existe.
func (w *ClickHouseWriter) EnsureSchema(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gauge_samples (
			name        LowCardinality(String),
			value       Float64,
			recorded_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (name, recorded_at)`)
	return err
}

// WriteSamples inserta el lote en una sola transacción (batch nativo de ClickHouse).
func (w *ClickHouseWriter) WriteSamples(ctx context.Context, samples []GaugeSample) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO gauge_samples (name, value, recorded_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.Name, s.Value, s.RecordedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for gauge %s: %w", s.Name, err)
		}
	}
	return tx.Commit()
}

func (w *ClickHouseWriter) Close() error {
	return w.db.Close()
}

// HistorySink acumula muestras en memoria y las vuelca por lotes.
// SetGauge nunca bloquea en I/O; si el buffer está lleno se descarta la muestra más antigua.
type HistorySink struct {
	writer   SampleWriter
	interval time.Duration
	maxBatch int
	now      func() time.Time
	log      *zap.Logger

	mu     sync.Mutex
	buffer []GaugeSample
}

func NewHistorySink(writer SampleWriter, interval time.Duration, maxBatch int, log *zap.Logger) *HistorySink {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &HistorySink{
		writer:   writer,
		interval: interval,
		maxBatch: maxBatch,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

func (s *HistorySink) SetGauge(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= s.maxBatch {
		s.buffer = s.buffer[1:]
	}
	s.buffer = append(s.buffer, GaugeSample{Name: name, Value: value, RecordedAt: s.now()})
}

// Flush escribe lo acumulado. Si la escritura falla, las muestras se devuelven al buffer.
func (s *HistorySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.writer.WriteSamples(ctx, batch); err != nil {
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		if over := len(s.buffer) - s.maxBatch; over > 0 {
			s.buffer = s.buffer[over:]
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Start vuelca periódicamente hasta que ctx se cancela; hace un último flush al salir.
func (s *HistorySink) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.log.Warn("⚠️ Último flush de gauges falló", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.log.Warn("⚠️ No se pudieron guardar muestras de gauges", zap.Error(err))
			}
		}
	}
}

var _ domain.MetricsSink = (*HistorySink)(nil)
