package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
)

const outboxColumns = `o.id::text, o.event_type, o.aggregate_type, o.aggregate_id, o.payload::text, o.priority,
	o.status, o.available_at, o.attempts, o.max_attempts, o.idempotency_key, o.last_error, o.created_at, o.updated_at`

// OutboxRepoPostgres implementa domain.OutboxRepository. El claim combina
// FOR UPDATE SKIP LOCKED con un UPDATE condicionado al estado pending, de modo
// que varios procesos pueden reclamar en paralelo sin pisarse.
type OutboxRepoPostgres struct {
	db    *sql.DB
	clock clock.Clock
}

func NewOutboxRepoPostgres(db *sql.DB, clk clock.Clock) *OutboxRepoPostgres {
	if clk == nil {
		clk = clock.Real()
	}
	return &OutboxRepoPostgres{db: db, clock: clk}
}

func (r *OutboxRepoPostgres) Enqueue(ctx context.Context, tx domain.Tx, evt *domain.DomainEvent) (bool, error) {
	now := r.clock.Now()
	id := uuid.NewString()
	if evt.AvailableAt.IsZero() {
		evt.AvailableAt = now
	}
	if evt.MaxAttempts <= 0 {
		evt.MaxAttempts = domain.DefaultMaxAttempts
	}
	payload := string(evt.Payload)
	if payload == "" {
		payload = "{}"
	}

	// En Postgres un error dentro de la transacción la deja abortada; el savepoint
	// aísla el insert para que la mutación de negocio pueda seguir y confirmar.
	if tx != nil {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT outbox_enqueue`); err != nil {
			return false, MapError(err)
		}
	}

	res, err := Pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO domain_event_outbox
			(id, event_type, aggregate_type, aggregate_id, payload, priority, status,
			 available_at, attempts, max_attempts, idempotency_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, 'pending', $7, 0, $8, $9, $10, $10)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		id, string(evt.EventType), evt.AggregateType, evt.AggregateID, payload, evt.Priority,
		evt.AvailableAt, evt.MaxAttempts, evt.IdempotencyKey, now,
	)
	if tx != nil {
		if err != nil {
			_, _ = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT outbox_enqueue`)
		} else if _, relErr := tx.ExecContext(ctx, `RELEASE SAVEPOINT outbox_enqueue`); relErr != nil {
			return false, MapError(relErr)
		}
	}
	if err != nil {
		return false, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	evt.ID = id
	evt.Status = domain.StatusPending
	evt.Attempts = 0
	evt.CreatedAt, evt.UpdatedAt = now, now
	return true, nil
}

func (r *OutboxRepoPostgres) Claim(ctx context.Context) (*domain.DomainEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE domain_event_outbox o
		 SET status = 'processing', updated_at = $1
		 FROM (
			SELECT id FROM domain_event_outbox
			WHERE status = 'pending' AND available_at <= $1
			ORDER BY priority DESC, created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 ) next
		 WHERE o.id = next.id AND o.status = 'pending'
		 RETURNING `+outboxColumns,
		r.clock.Now(),
	)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, MapError(err)
	}
	return evt, nil
}

func (r *OutboxRepoPostgres) Complete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, id)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE domain_event_outbox SET status = 'completed', updated_at = $1
		 WHERE id = $2 AND status = 'processing'`,
		r.clock.Now(), id,
	)
	if err != nil {
		return MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.explainMiss(ctx, id, domain.StatusCompleted)
	}
	return nil
}

func (r *OutboxRepoPostgres) Fail(ctx context.Context, id string, opts domain.FailOptions) (domain.EventStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrEventNotFound, id)
	}
	now := r.clock.Now()
	var status string
	err := r.db.QueryRowContext(ctx,
		`UPDATE domain_event_outbox
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 < max_attempts THEN 'pending' ELSE 'failed' END,
		     available_at = CASE WHEN attempts + 1 < max_attempts THEN $1 ELSE available_at END,
		     last_error = $2,
		     updated_at = $3
		 WHERE id = $4 AND status = 'processing'
		 RETURNING status`,
		now.Add(opts.RetryDelay), domain.TruncateError(opts.Error), now, id,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", r.explainMiss(ctx, id, domain.StatusFailed)
	}
	if err != nil {
		return "", MapError(err)
	}
	return domain.EventStatus(status), nil
}

func (r *OutboxRepoPostgres) CountByStatus(ctx context.Context, status domain.EventStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM domain_event_outbox WHERE status = $1`, string(status),
	).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

func (r *OutboxRepoPostgres) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := r.clock.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE domain_event_outbox SET status = 'pending', updated_at = $1
		 WHERE status = 'processing' AND updated_at < $2`,
		now, now.Add(-olderThan),
	)
	if err != nil {
		return 0, MapError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *OutboxRepoPostgres) Get(ctx context.Context, id string) (*domain.DomainEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEventNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+outboxColumns+` FROM domain_event_outbox o WHERE o.id = $1`, id)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return evt, nil
}

func (r *OutboxRepoPostgres) explainMiss(ctx context.Context, id string, target domain.EventStatus) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM domain_event_outbox WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, id)
	}
	if err != nil {
		return MapError(err)
	}
	return fmt.Errorf("%w: %s -> %s (event %s)", domain.ErrInvalidTransition, current, target, id)
}

func scanEvent(row *sql.Row) (*domain.DomainEvent, error) {
	var (
		evt                        domain.DomainEvent
		eventType, status, payload string
		lastError                  sql.NullString
	)
	err := row.Scan(&evt.ID, &eventType, &evt.AggregateType, &evt.AggregateID, &payload, &evt.Priority,
		&status, &evt.AvailableAt, &evt.Attempts, &evt.MaxAttempts, &evt.IdempotencyKey, &lastError,
		&evt.CreatedAt, &evt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	evt.EventType = domain.EventType(eventType)
	evt.Status = domain.EventStatus(status)
	evt.Payload = []byte(payload)
	evt.LastError = lastError.String
	evt.AvailableAt = evt.AvailableAt.UTC()
	evt.CreatedAt = evt.CreatedAt.UTC()
	evt.UpdatedAt = evt.UpdatedAt.UTC()
	return &evt, nil
}

// Verificación en tiempo de compilación.
var _ domain.OutboxRepository = (*OutboxRepoPostgres)(nil)
