package postgre

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	sharedPostgres "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/postgres"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
)

// uniqueViolation es el SQLSTATE de una clave duplicada.
const uniqueViolation = "23505"

type CatalogRepoPostgres struct {
	db *sql.DB
}

func NewCatalogRepoPostgres(db *sql.DB) *CatalogRepoPostgres {
	return &CatalogRepoPostgres{db: db}
}

var _ domain.CatalogRepository = (*CatalogRepoPostgres)(nil)

func (r *CatalogRepoPostgres) WithinTx(ctx context.Context, fn func(tx sharedDomain.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sharedPostgres.MapError(err)
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

func (r *CatalogRepoPostgres) CreateAsset(ctx context.Context, tx sharedDomain.Tx, a *domain.Asset) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := sharedPostgres.Pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO sticker_assets (id, owner_jid, mime_type, sha256, created_at) VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.OwnerJID, a.MimeType, a.SHA256, a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAsset
	}
	return sharedPostgres.MapError(err)
}

func (r *CatalogRepoPostgres) ClassifyAsset(ctx context.Context, tx sharedDomain.Tx, assetID, category string, confidence float64, at time.Time) error {
	if !validID(assetID) {
		return domain.ErrAssetNotFound
	}
	res, err := sharedPostgres.Pick(r.db, tx).ExecContext(ctx,
		`UPDATE sticker_assets SET category = $1, confidence = $2, classified_at = $3 WHERE id = $4`,
		category, confidence, at, assetID,
	)
	if err != nil {
		return sharedPostgres.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

func (r *CatalogRepoPostgres) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if !validID(id) {
		return nil, domain.ErrAssetNotFound
	}
	var (
		a            domain.Asset
		category     sql.NullString
		confidence   sql.NullFloat64
		classifiedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id::text, owner_jid, mime_type, sha256, category, confidence, classified_at, created_at
		 FROM sticker_assets WHERE id = $1`, id,
	).Scan(&a.ID, &a.OwnerJID, &a.MimeType, &a.SHA256, &category, &confidence, &classifiedAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, sharedPostgres.MapError(err)
	}
	a.Category = category.String
	a.Confidence = confidence.Float64
	if classifiedAt.Valid {
		t := classifiedAt.Time.UTC()
		a.ClassifiedAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (r *CatalogRepoPostgres) CreatePack(ctx context.Context, tx sharedDomain.Tx, p *domain.Pack) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := sharedPostgres.Pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO sticker_packs (id, owner_jid, name, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.OwnerJID, p.Name, p.CreatedAt, p.UpdatedAt,
	)
	return sharedPostgres.MapError(err)
}

func (r *CatalogRepoPostgres) RenamePack(ctx context.Context, tx sharedDomain.Tx, packID, name string, at time.Time) error {
	if !validID(packID) {
		return domain.ErrPackNotFound
	}
	res, err := sharedPostgres.Pick(r.db, tx).ExecContext(ctx,
		`UPDATE sticker_packs SET name = $1, updated_at = $2 WHERE id = $3`, name, at, packID,
	)
	if err != nil {
		return sharedPostgres.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPackNotFound
	}
	return nil
}

func (r *CatalogRepoPostgres) AddItem(ctx context.Context, tx sharedDomain.Tx, packID, assetID string, at time.Time) (int, error) {
	if !validID(packID) {
		return 0, domain.ErrPackNotFound
	}
	if !validID(assetID) {
		return 0, domain.ErrAssetNotFound
	}
	exec := sharedPostgres.Pick(r.db, tx)

	// Bloquea el pack para que dos inserciones concurrentes no calculen la misma posición.
	var locked string
	err := exec.QueryRowContext(ctx, `SELECT id::text FROM sticker_packs WHERE id = $1 FOR UPDATE`, packID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrPackNotFound
	}
	if err != nil {
		return 0, sharedPostgres.MapError(err)
	}
	if err := exists(ctx, exec, `SELECT 1 FROM sticker_assets WHERE id = $1`, assetID, domain.ErrAssetNotFound); err != nil {
		return 0, err
	}

	var position int
	err = exec.QueryRowContext(ctx,
		`INSERT INTO sticker_pack_items (pack_id, asset_id, position, added_at)
		 SELECT $1, $2, COALESCE(MAX(position), 0) + 1, $3 FROM sticker_pack_items WHERE pack_id = $1
		 RETURNING position`,
		packID, assetID, at,
	).Scan(&position)
	if isUniqueViolation(err) {
		return 0, domain.ErrAssetAlreadyInPack
	}
	if err != nil {
		return 0, sharedPostgres.MapError(err)
	}

	if _, err := exec.ExecContext(ctx, `UPDATE sticker_packs SET updated_at = $1 WHERE id = $2`, at, packID); err != nil {
		return 0, sharedPostgres.MapError(err)
	}
	return position, nil
}

func (r *CatalogRepoPostgres) RecordEngagement(ctx context.Context, tx sharedDomain.Tx, e *domain.Engagement) error {
	if !validID(e.PackID) {
		return domain.ErrPackNotFound
	}
	exec := sharedPostgres.Pick(r.db, tx)
	if err := exists(ctx, exec, `SELECT 1 FROM sticker_packs WHERE id = $1`, e.PackID, domain.ErrPackNotFound); err != nil {
		return err
	}
	if e.AssetID != "" && !validID(e.AssetID) {
		return domain.ErrAssetNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO pack_engagements (id, pack_id, asset_id, kind, actor_jid, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.PackID, nullable(e.AssetID), string(e.Kind), nullable(e.ActorJID), e.CreatedAt,
	)
	return sharedPostgres.MapError(err)
}

func (r *CatalogRepoPostgres) GetPack(ctx context.Context, id string) (*domain.Pack, error) {
	if !validID(id) {
		return nil, domain.ErrPackNotFound
	}
	var p domain.Pack
	err := r.db.QueryRowContext(ctx,
		`SELECT id::text, owner_jid, name, created_at, updated_at FROM sticker_packs WHERE id = $1`, id,
	).Scan(&p.ID, &p.OwnerJID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPackNotFound
	}
	if err != nil {
		return nil, sharedPostgres.MapError(err)
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

func (r *CatalogRepoPostgres) PackIDsForAsset(ctx context.Context, assetID string) ([]string, error) {
	ids := []string{}
	if !validID(assetID) {
		return ids, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT pack_id::text FROM sticker_pack_items WHERE asset_id = $1 ORDER BY pack_id`, assetID)
	if err != nil {
		return nil, sharedPostgres.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pack id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CatalogRepoPostgres) PackStats(ctx context.Context, packID string) (domain.PackStats, error) {
	stats := domain.PackStats{PackID: packID}
	if !validID(packID) {
		return stats, domain.ErrPackNotFound
	}
	if err := exists(ctx, r.db, `SELECT 1 FROM sticker_packs WHERE id = $1`, packID, domain.ErrPackNotFound); err != nil {
		return stats, err
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM sticker_pack_items WHERE pack_id = $1),
			(SELECT COUNT(*) FROM sticker_pack_items i
			   JOIN sticker_assets a ON a.id = i.asset_id
			  WHERE i.pack_id = $1 AND a.classified_at IS NOT NULL),
			(SELECT COUNT(*) FROM pack_engagements WHERE pack_id = $1)`,
		packID,
	).Scan(&stats.AssetCount, &stats.ClassifiedCount, &stats.EngagementCount)
	if err != nil {
		return stats, sharedPostgres.MapError(err)
	}
	return stats, nil
}

func exists(ctx context.Context, exec sharedPostgres.Executor, query, id string, notFound error) error {
	var one int
	err := exec.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return sharedPostgres.MapError(err)
}

// validID evita mandar a Postgres ids que no son UUID (la columna es de tipo uuid).
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
