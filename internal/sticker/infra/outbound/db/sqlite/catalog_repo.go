package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	sharedSQLite "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/sqlite"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
)

type CatalogRepoSQLite struct {
	db *sql.DB
}

func NewCatalogRepoSQLite(db *sql.DB) *CatalogRepoSQLite {
	return &CatalogRepoSQLite{db: db}
}

var _ domain.CatalogRepository = (*CatalogRepoSQLite)(nil)

// WithinTx abre una transacción, ejecuta fn y hace commit o rollback.
func (r *CatalogRepoSQLite) WithinTx(ctx context.Context, fn func(tx sharedDomain.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sharedSQLite.MapError(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *CatalogRepoSQLite) CreateAsset(ctx context.Context, tx sharedDomain.Tx, a *domain.Asset) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := sharedSQLite.Pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO sticker_assets (id, owner_jid, mime_type, sha256, created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.OwnerJID, a.MimeType, a.SHA256, sharedSQLite.ToMillis(a.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAsset
	}
	return sharedSQLite.MapError(err)
}

func (r *CatalogRepoSQLite) ClassifyAsset(ctx context.Context, tx sharedDomain.Tx, assetID, category string, confidence float64, at time.Time) error {
	res, err := sharedSQLite.Pick(r.db, tx).ExecContext(ctx,
		`UPDATE sticker_assets SET category = ?, confidence = ?, classified_at = ? WHERE id = ?`,
		category, confidence, sharedSQLite.ToMillis(at), assetID,
	)
	if err != nil {
		return sharedSQLite.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

func (r *CatalogRepoSQLite) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var (
		a            domain.Asset
		category     sql.NullString
		confidence   sql.NullFloat64
		classifiedAt sql.NullInt64
		createdAt    int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_jid, mime_type, sha256, category, confidence, classified_at, created_at
		 FROM sticker_assets WHERE id = ?`, id,
	).Scan(&a.ID, &a.OwnerJID, &a.MimeType, &a.SHA256, &category, &confidence, &classifiedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, sharedSQLite.MapError(err)
	}
	a.Category = category.String
	a.Confidence = confidence.Float64
	a.ClassifiedAt = sharedSQLite.FromNullMillis(classifiedAt)
	a.CreatedAt = sharedSQLite.FromMillis(createdAt)
	return &a, nil
}

func (r *CatalogRepoSQLite) CreatePack(ctx context.Context, tx sharedDomain.Tx, p *domain.Pack) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := sharedSQLite.Pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO sticker_packs (id, owner_jid, name, created_at, updated_at) VALUES (?,?,?,?,?)`,
		p.ID, p.OwnerJID, p.Name, sharedSQLite.ToMillis(p.CreatedAt), sharedSQLite.ToMillis(p.UpdatedAt),
	)
	return sharedSQLite.MapError(err)
}

func (r *CatalogRepoSQLite) RenamePack(ctx context.Context, tx sharedDomain.Tx, packID, name string, at time.Time) error {
	res, err := sharedSQLite.Pick(r.db, tx).ExecContext(ctx,
		`UPDATE sticker_packs SET name = ?, updated_at = ? WHERE id = ?`,
		name, sharedSQLite.ToMillis(at), packID,
	)
	if err != nil {
		return sharedSQLite.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPackNotFound
	}
	return nil
}

func (r *CatalogRepoSQLite) AddItem(ctx context.Context, tx sharedDomain.Tx, packID, assetID string, at time.Time) (int, error) {
	exec := sharedSQLite.Pick(r.db, tx)

	if err := exists(ctx, exec, `SELECT 1 FROM sticker_packs WHERE id = ?`, packID, domain.ErrPackNotFound); err != nil {
		return 0, err
	}
	if err := exists(ctx, exec, `SELECT 1 FROM sticker_assets WHERE id = ?`, assetID, domain.ErrAssetNotFound); err != nil {
		return 0, err
	}

	var position int
	if err := exec.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM sticker_pack_items WHERE pack_id = ?`, packID,
	).Scan(&position); err != nil {
		return 0, sharedSQLite.MapError(err)
	}

	_, err := exec.ExecContext(ctx,
		`INSERT INTO sticker_pack_items (pack_id, asset_id, position, added_at) VALUES (?,?,?,?)`,
		packID, assetID, position, sharedSQLite.ToMillis(at),
	)
	if isUniqueViolation(err) {
		return 0, domain.ErrAssetAlreadyInPack
	}
	if err != nil {
		return 0, sharedSQLite.MapError(err)
	}

	if _, err := exec.ExecContext(ctx,
		`UPDATE sticker_packs SET updated_at = ? WHERE id = ?`, sharedSQLite.ToMillis(at), packID,
	); err != nil {
		return 0, sharedSQLite.MapError(err)
	}
	return position, nil
}

func (r *CatalogRepoSQLite) RecordEngagement(ctx context.Context, tx sharedDomain.Tx, e *domain.Engagement) error {
	exec := sharedSQLite.Pick(r.db, tx)
	if err := exists(ctx, exec, `SELECT 1 FROM sticker_packs WHERE id = ?`, e.PackID, domain.ErrPackNotFound); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO pack_engagements (id, pack_id, asset_id, kind, actor_jid, created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.PackID, nullable(e.AssetID), string(e.Kind), nullable(e.ActorJID), sharedSQLite.ToMillis(e.CreatedAt),
	)
	return sharedSQLite.MapError(err)
}

func (r *CatalogRepoSQLite) GetPack(ctx context.Context, id string) (*domain.Pack, error) {
	var (
		p                    domain.Pack
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_jid, name, created_at, updated_at FROM sticker_packs WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerJID, &p.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPackNotFound
	}
	if err != nil {
		return nil, sharedSQLite.MapError(err)
	}
	p.CreatedAt = sharedSQLite.FromMillis(createdAt)
	p.UpdatedAt = sharedSQLite.FromMillis(updatedAt)
	return &p, nil
}

func (r *CatalogRepoSQLite) PackIDsForAsset(ctx context.Context, assetID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pack_id FROM sticker_pack_items WHERE asset_id = ? ORDER BY pack_id`, assetID)
	if err != nil {
		return nil, sharedSQLite.MapError(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pack id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CatalogRepoSQLite) PackStats(ctx context.Context, packID string) (domain.PackStats, error) {
	stats := domain.PackStats{PackID: packID}
	if err := exists(ctx, r.db, `SELECT 1 FROM sticker_packs WHERE id = ?`, packID, domain.ErrPackNotFound); err != nil {
		return stats, err
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM sticker_pack_items WHERE pack_id = ?),
			(SELECT COUNT(*) FROM sticker_pack_items i
			   JOIN sticker_assets a ON a.id = i.asset_id
			  WHERE i.pack_id = ? AND a.classified_at IS NOT NULL),
			(SELECT COUNT(*) FROM pack_engagements WHERE pack_id = ?)`,
		packID, packID, packID,
	).Scan(&stats.AssetCount, &stats.ClassifiedCount, &stats.EngagementCount)
	if err != nil {
		return stats, sharedSQLite.MapError(err)
	}
	return stats, nil
}

// exists devuelve notFound si la consulta no produce filas.
func exists(ctx context.Context, exec sharedSQLite.Executor, query, id string, notFound error) error {
	var one int
	err := exec.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return sharedSQLite.MapError(err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
