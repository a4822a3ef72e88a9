package sqlite

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

const outboxColumns = `id, event_type, aggregate_type, aggregate_id, payload, priority, status,
	available_at, attempts, max_attempts, idempotency_key, last_error, created_at, updated_at`

// OutboxRepoSQLite implementa domain.OutboxRepository sobre domain_event_outbox.
type OutboxRepoSQLite struct {
	db    *sql.DB
	clock clock.Clock
}

func NewOutboxRepoSQLite(db *sql.DB, clk clock.Clock) *OutboxRepoSQLite {
	if clk == nil {
		clk = clock.Real()
	}
	return &OutboxRepoSQLite{db: db, clock: clk}
}

// Enqueue inserta el evento ignorando duplicados por idempotency_key.
func (r *OutboxRepoSQLite) Enqueue(ctx context.Context, tx domain.Tx, evt *domain.DomainEvent) (bool, error) {
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

	res, err := Pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO domain_event_outbox
			(id, event_type, aggregate_type, aggregate_id, payload, priority, status,
			 available_at, attempts, max_attempts, idempotency_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, 0, ?, ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO NOTHING`,
		id, string(evt.EventType), evt.AggregateType, evt.AggregateID, payload, evt.Priority,
		ToMillis(evt.AvailableAt), evt.MaxAttempts, evt.IdempotencyKey, ToMillis(now), ToMillis(now),
	)
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
	evt.CreatedAt, evt.UpdatedAt = FromMillis(ToMillis(now)), FromMillis(ToMillis(now))
	return true, nil
}

// Claim pasa a processing el evento pendiente y vencido más prioritario en una
// sola sentencia. SQLite serializa escritores, así que dos llamadores nunca
// obtienen la misma fila; el "AND status = 'pending'" externo es el CAS.
func (r *OutboxRepoSQLite) Claim(ctx context.Context) (*domain.DomainEvent, error) {
	now := ToMillis(r.clock.Now())
	row := r.db.QueryRowContext(ctx,
		`UPDATE domain_event_outbox
		 SET status = 'processing', updated_at = ?
		 WHERE id = (
			SELECT id FROM domain_event_outbox
			WHERE status = 'pending' AND available_at <= ?
			ORDER BY priority DESC, created_at ASC, rowid ASC
			LIMIT 1
		 ) AND status = 'pending'
		 RETURNING `+outboxColumns,
		now, now,
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

func (r *OutboxRepoSQLite) Complete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE domain_event_outbox SET status = 'completed', updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		ToMillis(r.clock.Now()), id,
	)
	if err != nil {
		return MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.explainMiss(ctx, id, domain.StatusCompleted)
	}
	return nil
}

// Fail incrementa attempts y decide entre reintento (pending + available_at) o failed terminal.
func (r *OutboxRepoSQLite) Fail(ctx context.Context, id string, opts domain.FailOptions) (domain.EventStatus, error) {
	now := r.clock.Now()
	var status string
	err := r.db.QueryRowContext(ctx,
		`UPDATE domain_event_outbox
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 < max_attempts THEN 'pending' ELSE 'failed' END,
		     available_at = CASE WHEN attempts + 1 < max_attempts THEN ? ELSE available_at END,
		     last_error = ?,
		     updated_at = ?
		 WHERE id = ? AND status = 'processing'
		 RETURNING status`,
		ToMillis(now.Add(opts.RetryDelay)), domain.TruncateError(opts.Error), ToMillis(now), id,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", r.explainMiss(ctx, id, domain.StatusFailed)
	}
	if err != nil {
		return "", MapError(err)
	}
	return domain.EventStatus(status), nil
}

func (r *OutboxRepoSQLite) CountByStatus(ctx context.Context, status domain.EventStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM domain_event_outbox WHERE status = ?`, string(status),
	).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

func (r *OutboxRepoSQLite) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := r.clock.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE domain_event_outbox SET status = 'pending', updated_at = ?
		 WHERE status = 'processing' AND updated_at < ?`,
		ToMillis(now), ToMillis(now.Add(-olderThan)),
	)
	if err != nil {
		return 0, MapError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *OutboxRepoSQLite) Get(ctx context.Context, id string) (*domain.DomainEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+outboxColumns+` FROM domain_event_outbox WHERE id = ?`, id)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return evt, nil
}

func (r *OutboxRepoSQLite) explainMiss(ctx context.Context, id string, target domain.EventStatus) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM domain_event_outbox WHERE id = ?`, id).Scan(&current)
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
		evt                             domain.DomainEvent
		eventType, status, payload      string
		lastError                       sql.NullString
		availableAt, createdAt, updated int64
	)
	err := row.Scan(&evt.ID, &eventType, &evt.AggregateType, &evt.AggregateID, &payload, &evt.Priority,
		&status, &availableAt, &evt.Attempts, &evt.MaxAttempts, &evt.IdempotencyKey, &lastError,
		&createdAt, &updated)
	if err != nil {
		return nil, err
	}
	evt.EventType = domain.EventType(eventType)
	evt.Status = domain.EventStatus(status)
	evt.Payload = []byte(payload)
	evt.LastError = lastError.String
	evt.AvailableAt = FromMillis(availableAt)
	evt.CreatedAt = FromMillis(createdAt)
	evt.UpdatedAt = FromMillis(updated)
	return &evt, nil
}

// Verificación en tiempo de compilación.
var _ domain.OutboxRepository = (*OutboxRepoSQLite)(nil)
