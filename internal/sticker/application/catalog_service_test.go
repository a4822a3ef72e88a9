package application_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/migrations"
	sharedSQLite "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/sqlite"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/publisher"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/application"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/infra/outbound/db/sqlite"
)

type fixture struct {
	db      *sql.DB
	clock   *clock.FakeClock
	outbox  *sharedSQLite.OutboxRepoSQLite
	catalog *sqlite.CatalogRepoSQLite
	service *application.CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sharedSQLite.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Up(db, migrations.DriverSQLite))

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	outbox := sharedSQLite.NewOutboxRepoSQLite(db, clk)
	catalog := sqlite.NewCatalogRepoSQLite(db)
	pub := publisher.NewPublisher(outbox, nil, zap.NewNop())
	return &fixture{
		db:      db,
		clock:   clk,
		outbox:  outbox,
		catalog: catalog,
		service: application.NewCatalogService(catalog, pub, clk, zap.NewNop()),
	}
}

// drain reclama y completa todo el outbox devolviendo los tipos en orden de claim.
func (f *fixture) drain(t *testing.T) []sharedDomain.DomainEvent {
	t.Helper()
	var out []sharedDomain.DomainEvent
	for {
		evt, err := f.outbox.Claim(context.Background())
		require.NoError(t, err)
		if evt == nil {
			return out
		}
		require.NoError(t, f.outbox.Complete(context.Background(), evt.ID))
		out = append(out, *evt)
	}
}

func TestCatalogService_CreateAssetPublishesEvent(t *testing.T) {
	// ARRANGE
	f := newFixture(t)
	ctx := context.Background()

	// ACT
	asset, err := f.service.CreateAsset(ctx, "5511999@s.whatsapp.net", "IMAGE/WEBP", "ABC123")
	require.NoError(t, err)

	// ASSERT
	events := f.drain(t)
	require.Len(t, events, 1)
	assert.Equal(t, sharedDomain.EventStickerAssetCreated, events[0].EventType)
	assert.Equal(t, domain.AggregateAsset, events[0].AggregateType)
	assert.Equal(t, asset.ID, events[0].AggregateID)

	decoded, err := sharedDomain.DecodeEvent(events[0])
	require.NoError(t, err)
	assert.Equal(t, sharedDomain.StickerAssetCreated{AssetID: asset.ID, MimeType: "image/webp", OwnerJID: "5511999@s.whatsapp.net"}, decoded)

	stored, err := f.service.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", stored.SHA256)
}

func TestCatalogService_FailedMutationPublishesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateAsset(ctx, "owner", "image/png", "same-hash")
	require.NoError(t, err)
	_, err = f.service.CreateAsset(ctx, "owner", "image/png", "same-hash")
	assert.ErrorIs(t, err, domain.ErrDuplicateAsset)

	err = f.service.ClassifyAsset(ctx, "missing", "memes", 0.8)
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)

	n, err := f.outbox.CountByStatus(ctx, sharedDomain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the successful creation reaches the outbox")
}

func TestCatalogService_PackLifecycle(t *testing.T) {
	// ARRANGE
	f := newFixture(t)
	ctx := context.Background()
	a1, err := f.service.CreateAsset(ctx, "owner", "image/webp", "h1")
	require.NoError(t, err)
	a2, err := f.service.CreateAsset(ctx, "owner", "image/webp", "h2")
	require.NoError(t, err)
	pack, err := f.service.CreatePack(ctx, "owner", "  Memes BR ")
	require.NoError(t, err)
	assert.Equal(t, "Memes BR", pack.Name)
	f.drain(t)

	// ACT
	pos1, err := f.service.AddAssetToPack(ctx, pack.ID, a1.ID)
	require.NoError(t, err)
	pos2, err := f.service.AddAssetToPack(ctx, pack.ID, a2.ID)
	require.NoError(t, err)
	_, dupErr := f.service.AddAssetToPack(ctx, pack.ID, a1.ID)
	_, missingErr := f.service.AddAssetToPack(ctx, "nope", a1.ID)

	// ASSERT
	assert.Equal(t, 1, pos1)
	assert.Equal(t, 2, pos2)
	assert.ErrorIs(t, dupErr, domain.ErrAssetAlreadyInPack)
	assert.ErrorIs(t, missingErr, domain.ErrPackNotFound)

	ids, err := f.service.PackIDsForAsset(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{pack.ID}, ids)

	events := f.drain(t)
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.Equal(t, sharedDomain.EventPackUpdated, evt.EventType)
		assert.Equal(t, pack.ID, evt.AggregateID)
	}
}

func TestCatalogService_RepeatedMutationsAreDistinctEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pack, err := f.service.CreatePack(ctx, "owner", "v1")
	require.NoError(t, err)
	asset, err := f.service.CreateAsset(ctx, "owner", "image/webp", "h1")
	require.NoError(t, err)
	f.drain(t)

	require.NoError(t, f.service.RenamePack(ctx, pack.ID, "v2"))
	f.clock.Advance(time.Second)
	require.NoError(t, f.service.RenamePack(ctx, pack.ID, "v1"))
	require.NoError(t, f.service.ClassifyAsset(ctx, asset.ID, "Memes", 0.7))
	f.clock.Advance(time.Second)
	require.NoError(t, f.service.ClassifyAsset(ctx, asset.ID, "memes", 0.7))

	assert.Len(t, f.drain(t), 4)

	stored, err := f.service.GetPack(ctx, pack.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", stored.Name)

	classified, err := f.service.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "memes", classified.Category)
	require.NotNil(t, classified.ClassifiedAt)
}

func TestCatalogService_RecordEngagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pack, err := f.service.CreatePack(ctx, "owner", "pack")
	require.NoError(t, err)
	f.drain(t)

	_, err = f.service.RecordEngagement(ctx, pack.ID, "", domain.EngagementDownload, "actor")
	require.NoError(t, err)
	_, err = f.service.RecordEngagement(ctx, pack.ID, "", domain.EngagementDownload, "actor")
	require.NoError(t, err)

	_, err = f.service.RecordEngagement(ctx, pack.ID, "", "like", "actor")
	assert.ErrorIs(t, err, domain.ErrInvalidEngagement)
	_, err = f.service.RecordEngagement(ctx, "missing", "", domain.EngagementView, "actor")
	assert.ErrorIs(t, err, domain.ErrPackNotFound)

	events := f.drain(t)
	require.Len(t, events, 2, "every engagement is its own event")
	assert.Equal(t, sharedDomain.EventEngagementRecorded, events[0].EventType)
}

func TestCatalogService_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateAsset(ctx, "owner", "video/mp4", "h")
	assert.ErrorIs(t, err, domain.ErrInvalidAsset)
	_, err = f.service.CreatePack(ctx, "owner", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPack)
	assert.ErrorIs(t, f.service.ClassifyAsset(ctx, "a", "memes", 1.5), domain.ErrInvalidAsset)
	assert.ErrorIs(t, f.service.RenamePack(ctx, "p", " "), domain.ErrInvalidPack)

	assert.Empty(t, f.drain(t))
}
