package domain

import (
	"context"
	"errors"
	"time"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// ---------- Errores de dominio ----------
var (
	ErrAssetNotFound      = errors.New("sticker asset not found")
	ErrPackNotFound       = errors.New("sticker pack not found")
	ErrDuplicateAsset     = errors.New("sticker asset already exists")
	ErrAssetAlreadyInPack = errors.New("sticker asset already in pack")
	ErrInvalidAsset       = errors.New("invalid sticker asset")
	ErrInvalidPack        = errors.New("invalid sticker pack")
	ErrInvalidEngagement  = errors.New("invalid engagement")
)

// ---------- Interfaces (Ports) ----------

// CatalogRepository persiste el catálogo. Las mutaciones reciben la transacción
// abierta por WithinTx para que los eventos de dominio viajen en ella.
type CatalogRepository interface {
	// WithinTx ejecuta fn en una transacción; commit si fn devuelve nil.
	WithinTx(ctx context.Context, fn func(tx sharedDomain.Tx) error) error

	// Debe devolver ErrDuplicateAsset si ya existe un asset con el mismo sha256.
	CreateAsset(ctx context.Context, tx sharedDomain.Tx, a *Asset) error

	// Debe devolver ErrAssetNotFound si no existe.
	ClassifyAsset(ctx context.Context, tx sharedDomain.Tx, assetID, category string, confidence float64, at time.Time) error

	GetAsset(ctx context.Context, id string) (*Asset, error)

	CreatePack(ctx context.Context, tx sharedDomain.Tx, p *Pack) error

	// Debe devolver ErrPackNotFound si no existe.
	RenamePack(ctx context.Context, tx sharedDomain.Tx, packID, name string, at time.Time) error

	// AddItem añade el asset al final del pack y devuelve su posición.
	AddItem(ctx context.Context, tx sharedDomain.Tx, packID, assetID string, at time.Time) (int, error)

	RecordEngagement(ctx context.Context, tx sharedDomain.Tx, e *Engagement) error

	GetPack(ctx context.Context, id string) (*Pack, error)

	// PackIDsForAsset lista los packs que contienen el asset.
	PackIDsForAsset(ctx context.Context, assetID string) ([]string, error)

	// Debe devolver ErrPackNotFound si el pack no existe.
	PackStats(ctx context.Context, packID string) (PackStats, error)
}
