package http

import "github.com/gin-gonic/gin"

func RegisterStickerRoutes(r gin.IRouter, handler *StickerHandler) {
	stickers := r.Group("/stickers")
	{
		stickers.POST("", handler.CreateAsset)
		stickers.GET("/:id", handler.GetAsset)
		stickers.POST("/:id/classification", handler.ClassifyAsset)
	}

	packs := r.Group("/packs")
	{
		packs.POST("", handler.CreatePack)
		packs.GET("/:id", handler.GetPack)
		packs.PATCH("/:id", handler.RenamePack)
		packs.POST("/:id/items", handler.AddItem)
		packs.POST("/:id/engagements", handler.RecordEngagement)
		packs.GET("/:id/score", handler.GetScore)
	}
}
