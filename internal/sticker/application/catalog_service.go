package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/publisher"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
)

// EventPublisher es el Domain Event Publisher visto desde el catálogo.
type EventPublisher interface {
	Publish(ctx context.Context, in publisher.Input, opts ...publisher.Option) bool
}

// CatalogService define los casos de uso del catálogo de stickers. Cada mutación
// publica su evento de dominio en la misma transacción.
type CatalogService struct {
	repo   domain.CatalogRepository
	events EventPublisher
	clock  clock.Clock
	log    *zap.Logger
}

func NewCatalogService(repo domain.CatalogRepository, events EventPublisher, clk clock.Clock, log *zap.Logger) *CatalogService {
	if clk == nil {
		clk = clock.Real()
	}
	return &CatalogService{repo: repo, events: events, clock: clk, log: log}
}

func (s *CatalogService) CreateAsset(ctx context.Context, ownerJID, mimeType, sha256 string) (*domain.Asset, error) {
	asset := &domain.Asset{
		OwnerJID:  strings.TrimSpace(ownerJID),
		MimeType:  strings.ToLower(strings.TrimSpace(mimeType)),
		SHA256:    strings.ToLower(strings.TrimSpace(sha256)),
		CreatedAt: s.clock.Now(),
	}
	if err := asset.Validate(); err != nil {
		return nil, err
	}

	err := s.repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		if err := s.repo.CreateAsset(ctx, tx, asset); err != nil {
			return err
		}
		s.publish(ctx, tx, sharedDomain.EventStickerAssetCreated, domain.AggregateAsset, asset.ID, sharedDomain.StickerAssetCreated{
			AssetID:  asset.ID,
			MimeType: asset.MimeType,
			OwnerJID: asset.OwnerJID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("🖼️ Sticker registrado", zap.String("asset_id", asset.ID), zap.String("owner_jid", asset.OwnerJID))
	return asset, nil
}

// ClassifyAsset guarda la categoría detectada por el clasificador.
func (s *CatalogService) ClassifyAsset(ctx context.Context, assetID, category string, confidence float64) error {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: category required and confidence in [0,1]", domain.ErrInvalidAsset)
	}

	now := s.clock.Now()
	return s.repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		if err := s.repo.ClassifyAsset(ctx, tx, assetID, category, confidence, now); err != nil {
			return err
		}
		// Una reclasificación es un hecho nuevo aunque repita categoría.
		s.publishKeyed(ctx, tx, revisionKey("classified", assetID, now), sharedDomain.EventStickerClassified, domain.AggregateAsset, assetID,
			sharedDomain.StickerClassified{AssetID: assetID, Category: category, Confidence: confidence})
		return nil
	})
}

func (s *CatalogService) CreatePack(ctx context.Context, ownerJID, name string) (*domain.Pack, error) {
	now := s.clock.Now()
	pack := &domain.Pack{
		OwnerJID:  strings.TrimSpace(ownerJID),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}

	err := s.repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		if err := s.repo.CreatePack(ctx, tx, pack); err != nil {
			return err
		}
		s.publish(ctx, tx, sharedDomain.EventPackUpdated, domain.AggregatePack, pack.ID, sharedDomain.PackUpdated{
			PackID: pack.ID,
			Reason: "created",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pack, nil
}

func (s *CatalogService) RenamePack(ctx context.Context, packID, name string) error {
	name = strings.TrimSpace(name)
	if err := domain.ValidatePackName(name); err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		if err := s.repo.RenamePack(ctx, tx, packID, name, now); err != nil {
			return err
		}
		s.publishKeyed(ctx, tx, revisionKey("renamed", packID, now), sharedDomain.EventPackUpdated, domain.AggregatePack, packID,
			sharedDomain.PackUpdated{PackID: packID, Reason: "renamed"})
		return nil
	})
}

// AddAssetToPack añade el sticker al final del pack y devuelve su posición.
func (s *CatalogService) AddAssetToPack(ctx context.Context, packID, assetID string) (int, error) {
	var position int
	err := s.repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		var err error
		position, err = s.repo.AddItem(ctx, tx, packID, assetID, s.clock.Now())
		if err != nil {
			return err
		}
		s.publishKeyed(ctx, tx, "item_added:"+packID+":"+assetID, sharedDomain.EventPackUpdated, domain.AggregatePack, packID,
			sharedDomain.PackUpdated{PackID: packID, Reason: "item_added"})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

func (s *CatalogService) RecordEngagement(ctx context.Context, packID, assetID string, kind domain.EngagementKind, actorJID string) (*domain.Engagement, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidEngagement, kind)
	}
	e := &domain.Engagement{
		PackID:    packID,
		AssetID:   strings.TrimSpace(assetID),
		Kind:      kind,
		ActorJID:  strings.TrimSpace(actorJID),
		CreatedAt: s.clock.Now(),
	}

	err := s.repo.WithinTx(ctx, func(tx sharedDomain.Tx) error {
		if err := s.repo.RecordEngagement(ctx, tx, e); err != nil {
			return err
		}
		// Cada engagement es un hecho distinto: la clave lleva su id.
		s.publishKeyed(ctx, tx, "engagement:"+e.ID, sharedDomain.EventEngagementRecorded, domain.AggregatePack, packID,
			sharedDomain.EngagementRecorded{PackID: packID, AssetID: e.AssetID, EngagementKind: string(kind)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *CatalogService) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	return s.repo.GetAsset(ctx, id)
}

func (s *CatalogService) GetPack(ctx context.Context, id string) (*domain.Pack, error) {
	return s.repo.GetPack(ctx, id)
}

// PackIDsForAsset cumple relayer.PackResolver.
func (s *CatalogService) PackIDsForAsset(ctx context.Context, assetID string) ([]string, error) {
	return s.repo.PackIDsForAsset(ctx, assetID)
}

// revisionKey identifica una mutación repetible de un agregado.
func revisionKey(action, id string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", action, id, at.UnixNano())
}

func (s *CatalogService) publish(ctx context.Context, tx sharedDomain.Tx, eventType sharedDomain.EventType, aggregateType, aggregateID string, payload any) {
	s.publishKeyed(ctx, tx, "", eventType, aggregateType, aggregateID, payload)
}

// publishKeyed no falla la operación de negocio: el publisher ya registra el motivo.
func (s *CatalogService) publishKeyed(ctx context.Context, tx sharedDomain.Tx, key string, eventType sharedDomain.EventType, aggregateType, aggregateID string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, publisher.Input{
		EventType:      string(eventType),
		AggregateType:  aggregateType,
		AggregateID:    aggregateID,
		Payload:        payload,
		IdempotencyKey: key,
	}, publisher.WithTx(tx))
}
