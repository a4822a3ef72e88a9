package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/application"
	stickerDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/pkg/utils"
)

// StickerHandler encapsula los endpoints HTTP del catálogo.
type StickerHandler struct {
	catalog   *application.CatalogService
	snapshots *application.SnapshotService
	log       *zap.Logger
}

func NewStickerHandler(catalog *application.CatalogService, snapshots *application.SnapshotService, log *zap.Logger) *StickerHandler {
	return &StickerHandler{catalog: catalog, snapshots: snapshots, log: log}
}

// CreateAsset endpoint POST /stickers
func (h *StickerHandler) CreateAsset(c *gin.Context) {
	var req struct {
		OwnerJID string `json:"owner_jid" binding:"required"`
		MimeType string `json:"mime_type" binding:"required"`
		SHA256   string `json:"sha256" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	asset, err := h.catalog.CreateAsset(c.Request.Context(), req.OwnerJID, req.MimeType, req.SHA256)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, asset)
}

// GetAsset endpoint GET /stickers/:id
func (h *StickerHandler) GetAsset(c *gin.Context) {
	asset, err := h.catalog.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, asset)
}

// ClassifyAsset endpoint POST /stickers/:id/classification
func (h *StickerHandler) ClassifyAsset(c *gin.Context) {
	var req struct {
		Category   string   `json:"category" binding:"required"`
		Confidence *float64 `json:"confidence" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	if err := h.catalog.ClassifyAsset(c.Request.Context(), c.Param("id"), req.Category, *req.Confidence); err != nil {
		h.sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreatePack endpoint POST /packs
func (h *StickerHandler) CreatePack(c *gin.Context) {
	var req struct {
		OwnerJID string `json:"owner_jid" binding:"required"`
		Name     string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	pack, err := h.catalog.CreatePack(c.Request.Context(), req.OwnerJID, req.Name)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, pack)
}

// GetPack endpoint GET /packs/:id
func (h *StickerHandler) GetPack(c *gin.Context) {
	pack, err := h.catalog.GetPack(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, pack)
}

// RenamePack endpoint PATCH /packs/:id
func (h *StickerHandler) RenamePack(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	if err := h.catalog.RenamePack(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		h.sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddItem endpoint POST /packs/:id/items
func (h *StickerHandler) AddItem(c *gin.Context) {
	var req struct {
		AssetID string `json:"asset_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	position, err := h.catalog.AddAssetToPack(c.Request.Context(), c.Param("id"), req.AssetID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, gin.H{
		"pack_id":  c.Param("id"),
		"asset_id": req.AssetID,
		"position": position,
	})
}

// RecordEngagement endpoint POST /packs/:id/engagements
func (h *StickerHandler) RecordEngagement(c *gin.Context) {
	var req struct {
		Kind     string `json:"kind" binding:"required"`
		AssetID  string `json:"asset_id"`
		ActorJID string `json:"actor_jid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	e, err := h.catalog.RecordEngagement(c.Request.Context(), c.Param("id"), req.AssetID, stickerDomain.EngagementKind(req.Kind), req.ActorJID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, e)
}

// GetScore endpoint GET /packs/:id/score
func (h *StickerHandler) GetScore(c *gin.Context) {
	snap, err := h.snapshots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, snap)
}

func (h *StickerHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, stickerDomain.ErrAssetNotFound), errors.Is(err, stickerDomain.ErrPackNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, stickerDomain.ErrDuplicateAsset), errors.Is(err, stickerDomain.ErrAssetAlreadyInPack):
		utils.SendConflict(c, err.Error())
	case errors.Is(err, stickerDomain.ErrInvalidAsset),
		errors.Is(err, stickerDomain.ErrInvalidPack),
		errors.Is(err, stickerDomain.ErrInvalidEngagement):
		utils.SendBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrStorageNotProvisioned):
		utils.SendUnavailable(c, "catalog storage is not provisioned")
	default:
		h.log.Error("❌ Error en endpoint del catálogo", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, "internal error")
	}
}
