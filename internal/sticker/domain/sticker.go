package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Tipos de agregado con los que se publican los eventos del catálogo.
const (
	AggregateAsset = "sticker_asset"
	AggregatePack  = "sticker_pack"
)

// Asset es un sticker subido por un usuario.
type Asset struct {
	ID           string     `json:"id"`
	OwnerJID     string     `json:"owner_jid"`
	MimeType     string     `json:"mime_type"`
	SHA256       string     `json:"sha256"`
	Category     string     `json:"category,omitempty"`
	Confidence   float64    `json:"confidence,omitempty"`
	ClassifiedAt *time.Time `json:"classified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (a *Asset) Validate() error {
	if strings.TrimSpace(a.OwnerJID) == "" || strings.TrimSpace(a.SHA256) == "" {
		return fmt.Errorf("%w: owner_jid and sha256 are required", ErrInvalidAsset)
	}
	if !strings.HasPrefix(a.MimeType, "image/") {
		return fmt.Errorf("%w: unsupported mime type %q", ErrInvalidAsset, a.MimeType)
	}
	return nil
}

// Pack es una colección ordenada de stickers.
type Pack struct {
	ID        string    `json:"id"`
	OwnerJID  string    `json:"owner_jid"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Pack) Validate() error {
	if strings.TrimSpace(p.OwnerJID) == "" {
		return fmt.Errorf("%w: owner_jid is required", ErrInvalidPack)
	}
	return ValidatePackName(p.Name)
}

const MaxPackNameLength = 64

func ValidatePackName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > MaxPackNameLength {
		return fmt.Errorf("%w: name must have 1..%d characters", ErrInvalidPack, MaxPackNameLength)
	}
	return nil
}

// EngagementKind es lo que hizo un usuario con un pack.
type EngagementKind string

const (
	EngagementView     EngagementKind = "view"
	EngagementDownload EngagementKind = "download"
	EngagementShare    EngagementKind = "share"
	EngagementFavorite EngagementKind = "favorite"
)

func (k EngagementKind) Valid() bool {
	switch k {
	case EngagementView, EngagementDownload, EngagementShare, EngagementFavorite:
		return true
	}
	return false
}

type Engagement struct {
	ID        string         `json:"id"`
	PackID    string         `json:"pack_id"`
	AssetID   string         `json:"asset_id,omitempty"`
	Kind      EngagementKind `json:"kind"`
	ActorJID  string         `json:"actor_jid,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PackStats son los agregados crudos con los que se calcula el score.
type PackStats struct {
	PackID          string
	AssetCount      int
	ClassifiedCount int
	EngagementCount int
}

// PackScoreSnapshot es el score precalculado de un pack que se sirve desde caché.
type PackScoreSnapshot struct {
	PackID          string    `json:"pack_id"`
	AssetCount      int       `json:"asset_count"`
	ClassifiedCount int       `json:"classified_count"`
	EngagementCount int       `json:"engagement_count"`
	Score           float64   `json:"score"`
	RefreshedAt     time.Time `json:"refreshed_at"`
}

// Pesos del score: el engagement domina; el tamaño y la clasificación del pack desempatan.
const (
	engagementWeight = 1.0
	assetWeight      = 0.25
	classifiedWeight = 0.5
)

// ComputeScore deriva el snapshot a partir de las estadísticas del pack.
func ComputeScore(stats PackStats, now time.Time) PackScoreSnapshot {
	score := engagementWeight*float64(stats.EngagementCount) +
		assetWeight*float64(stats.AssetCount)
	if stats.AssetCount > 0 {
		score += classifiedWeight * float64(stats.ClassifiedCount) / float64(stats.AssetCount)
	}
	return PackScoreSnapshot{
		PackID:          stats.PackID,
		AssetCount:      stats.AssetCount,
		ClassifiedCount: stats.ClassifiedCount,
		EngagementCount: stats.EngagementCount,
		Score:           math.Round(score*1000) / 1000,
		RefreshedAt:     now.UTC(),
	}
}

// ScoreCacheKey forma la key del snapshot en caché.
func ScoreCacheKey(packID string) string {
	return fmt.Sprintf("pack:score:%s", packID)
}
