package postgre_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/migrations"
	sharedPostgres "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/postgres"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/task/infra/outbound/db/postgre"
)

func TestTaskQueuePostgres_EnqueueClaim(t *testing.T) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		t.Skip("DATABASE_URL no está configurada, saltando test de integración con Postgres")
	}
	ctx := context.Background()
	db, err := sharedPostgres.Open(ctx, connStr)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Up(db, migrations.DriverPostgres))
	_, err = db.Exec(`TRUNCATE worker_tasks`)
	require.NoError(t, err)

	q := postgre.NewTaskQueuePostgres(db, nil)
	key := taskDomain.DispatchKey("evt-1", taskDomain.TaskCurationCycle)
	for i := 0; i < 3; i++ {
		task, err := taskDomain.NewWorkerTask(taskDomain.TaskCurationCycle, 65, key, map[string]any{"pack_ids": []string{}})
		require.NoError(t, err)
		_, err = q.Enqueue(ctx, task)
		require.NoError(t, err)
	}

	n, err := q.CountByStatus(ctx, sharedDomain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	none, err := q.Claim(ctx, taskDomain.TaskRebuildCycle)
	require.NoError(t, err)
	assert.Nil(t, none)

	claimed, err := q.Claim(ctx, taskDomain.TaskCurationCycle)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, key, claimed.IdempotencyKey)
	require.NoError(t, q.Complete(ctx, claimed.ID))
}
