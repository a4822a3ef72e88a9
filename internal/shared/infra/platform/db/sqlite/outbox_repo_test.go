package sqlite_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/migrations"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/sqlite"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openDB(t *testing.T, migrate bool) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "omnizap_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if migrate {
		require.NoError(t, migrations.Up(db, migrations.DriverSQLite))
	}
	return db
}

func newEvent(key string, priority int) *domain.DomainEvent {
	return &domain.DomainEvent{
		EventType:      domain.EventPackUpdated,
		AggregateType:  "sticker_pack",
		AggregateID:    "pack-1",
		Payload:        json.RawMessage(`{"pack_id":"pack-1"}`),
		Priority:       priority,
		IdempotencyKey: key,
	}
}

func TestOutboxRepoSQLite_EnqueueIsIdempotent(t *testing.T) {
	// ARRANGE
	ctx := context.Background()
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clock.NewFakeClock(t0))

	// ACT
	created := 0
	for i := 0; i < 5; i++ {
		ok, err := repo.Enqueue(ctx, nil, newEvent("same-key", 50))
		require.NoError(t, err)
		if ok {
			created++
		}
	}

	// ASSERT
	assert.Equal(t, 1, created)
	n, err := repo.CountByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutboxRepoSQLite_EnqueueInsideCallerTx(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, true)
	repo := sqlite.NewOutboxRepoSQLite(db, clock.NewFakeClock(t0))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	ok, err := repo.Enqueue(ctx, tx, newEvent("rolled-back", 50))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Rollback())

	n, err := repo.CountByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rollback must discard the event together with the business mutation")
}

func TestOutboxRepoSQLite_ClaimOrder(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(t0)
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clk)

	_, err := repo.Enqueue(ctx, nil, newEvent("low", 50))
	require.NoError(t, err)
	clk.Advance(time.Millisecond)
	_, err = repo.Enqueue(ctx, nil, newEvent("high-1", 80))
	require.NoError(t, err)
	clk.Advance(time.Millisecond)
	_, err = repo.Enqueue(ctx, nil, newEvent("high-2", 80))
	require.NoError(t, err)

	var order []string
	for i := 0; i < 3; i++ {
		evt, err := repo.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, evt)
		assert.Equal(t, domain.StatusProcessing, evt.Status)
		order = append(order, evt.IdempotencyKey)
	}
	assert.Equal(t, []string{"high-1", "high-2", "low"}, order)

	evt, err := repo.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestOutboxRepoSQLite_ConcurrentClaimsAreDistinct(t *testing.T) {
	// ARRANGE
	ctx := context.Background()
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clock.NewFakeClock(t0))
	const rows, callers = 5, 20
	for i := 0; i < rows; i++ {
		_, err := repo.Enqueue(ctx, nil, newEvent(fmt.Sprintf("k-%d", i), 50))
		require.NoError(t, err)
	}

	// ACT
	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt, err := repo.Claim(ctx)
			assert.NoError(t, err)
			if evt != nil {
				mu.Lock()
				claimed[evt.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// ASSERT
	assert.Len(t, claimed, rows)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "event %s claimed more than once", id)
	}
}

func TestOutboxRepoSQLite_ConcurrentClaimsAcrossHandles(t *testing.T) {
	// ARRANGE: varias conexiones independientes sobre el mismo fichero,
	// como varios workers compartiendo la base.
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared_outbox.db")
	const rows, handles, callersPerHandle = 40, 8, 10

	repos := make([]*sqlite.OutboxRepoSQLite, 0, handles)
	for i := 0; i < handles; i++ {
		db, err := sqlite.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		if i == 0 {
			require.NoError(t, migrations.Up(db, migrations.DriverSQLite))
		}
		repos = append(repos, sqlite.NewOutboxRepoSQLite(db, clock.NewFakeClock(t0)))
	}
	for i := 0; i < rows; i++ {
		_, err := repos[0].Enqueue(ctx, nil, newEvent(fmt.Sprintf("shared-%d", i), 50))
		require.NoError(t, err)
	}

	// ACT
	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		errs    []error
		wg      sync.WaitGroup
	)
	for _, repo := range repos {
		for c := 0; c < callersPerHandle; c++ {
			wg.Add(1)
			go func(repo *sqlite.OutboxRepoSQLite) {
				defer wg.Done()
				evt, err := repo.Claim(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if evt != nil {
					claimed[evt.ID]++
				}
			}(repo)
		}
	}
	wg.Wait()

	// ASSERT
	assert.Empty(t, errs)
	assert.Len(t, claimed, rows)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "event %s claimed more than once", id)
	}
	remaining, err := repos[handles-1].CountByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestOutboxRepoSQLite_FailRetriesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(t0)
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clk)

	evt := newEvent("flaky", 50)
	evt.MaxAttempts = 3
	_, err := repo.Enqueue(ctx, nil, evt)
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := repo.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", attempt)

		status, err := repo.Fail(ctx, claimed.ID, domain.FailOptions{Error: "boom", RetryDelay: 45 * time.Second})
		require.NoError(t, err)
		if attempt < 3 {
			assert.Equal(t, domain.StatusPending, status)
		} else {
			assert.Equal(t, domain.StatusFailed, status)
		}
		clk.Advance(time.Minute)
	}

	stored, err := repo.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, "boom", stored.LastError)

	clk.Advance(24 * time.Hour)
	again, err := repo.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "failed is terminal")
}

func TestOutboxRepoSQLite_RetryHonoursAvailableAt(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(t0)
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clk)

	_, err := repo.Enqueue(ctx, nil, newEvent("later", 50))
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	_, err = repo.Fail(ctx, claimed.ID, domain.FailOptions{Error: "timeout", RetryDelay: 45 * time.Second})
	require.NoError(t, err)

	clk.Advance(44 * time.Second)
	early, err := repo.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, early)

	clk.Advance(time.Second)
	due, err := repo.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Equal(t, claimed.ID, due.ID)
	assert.Equal(t, 1, due.Attempts)
}

func TestOutboxRepoSQLite_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clock.NewFakeClock(t0))

	_, err := repo.Enqueue(ctx, nil, newEvent("done", 50))
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, claimed.ID))

	err = repo.Complete(ctx, claimed.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = repo.Fail(ctx, claimed.ID, domain.FailOptions{Error: "late"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = repo.Complete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestOutboxRepoSQLite_ReleaseStale(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(t0)
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, true), clk)

	_, err := repo.Enqueue(ctx, nil, newEvent("stuck", 50))
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := repo.ReleaseStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(6 * time.Minute)
	n, err = repo.ReleaseStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := repo.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, claimed.ID, again.ID)
}

func TestOutboxRepoSQLite_UnprovisionedStoreIsSoft(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewOutboxRepoSQLite(openDB(t, false), clock.NewFakeClock(t0))

	created, err := repo.Enqueue(ctx, nil, newEvent("k", 50))
	assert.False(t, created)
	assert.ErrorIs(t, err, domain.ErrStorageNotProvisioned)

	evt, err := repo.Claim(ctx)
	assert.Nil(t, evt)
	assert.ErrorIs(t, err, domain.ErrStorageNotProvisioned)

	for _, status := range domain.AllStatuses {
		n, err := repo.CountByStatus(ctx, status)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, domain.ErrStorageNotProvisioned)
	}
}
