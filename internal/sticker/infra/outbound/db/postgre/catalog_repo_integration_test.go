package postgre_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/migrations"
	sharedPostgres "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/postgres"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/infra/outbound/db/postgre"
)

func setupPostgresTestDB(t *testing.T) *sql.DB {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		t.Skip("DATABASE_URL no está configurada, saltando test de integración con Postgres")
	}

	db, err := sharedPostgres.Open(context.Background(), connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(db, migrations.DriverPostgres))
	_, err = db.Exec(`TRUNCATE pack_engagements, sticker_pack_items, sticker_packs, sticker_assets`)
	require.NoError(t, err)
	return db
}

func TestCatalogRepoPostgres_AddItemAndStats(t *testing.T) {
	db := setupPostgresTestDB(t)
	ctx := context.Background()
	repo := postgre.NewCatalogRepoPostgres(db)
	now := time.Now().UTC()

	asset := &domain.Asset{OwnerJID: "o", MimeType: "image/webp", SHA256: uuid.NewString(), CreatedAt: now}
	pack := &domain.Pack{OwnerJID: "o", Name: "p", CreatedAt: now, UpdatedAt: now}

	err := repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		if err := repo.CreateAsset(ctx, tx, asset); err != nil {
			return err
		}
		return repo.CreatePack(ctx, tx, pack)
	})
	require.NoError(t, err)

	pos, err := repo.AddItem(ctx, nil, pack.ID, asset.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = repo.AddItem(ctx, nil, pack.ID, asset.ID, now)
	assert.ErrorIs(t, err, domain.ErrAssetAlreadyInPack)

	ids, err := repo.PackIDsForAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{pack.ID}, ids)

	stats, err := repo.PackStats(ctx, pack.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AssetCount)

	_, err = repo.GetPack(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrPackNotFound)
}
