package handler

import (
	"canon-rag-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers 聚合所有 HTTP 处理器。
type Handlers struct {
	Documents *DocumentHandler
	Search    *SearchHandler
	Canon     *CanonHandler
	Analysis  *AnalysisHandler
}

// NewRouter 创建路由引擎并注册 /api/v1 下的全部路由。
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New() // 不带默认中间件
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { ok(c, "ok") })

	apiV1 := r.Group("/api/v1")
	{
		agents := apiV1.Group("/agents/:agentId")
		{
			agents.POST("/documents", h.Documents.Upload)
			agents.GET("/documents", h.Documents.List)
			agents.GET("/search", h.Search.Search)
			agents.GET("/canon", h.Canon.Get)
			agents.PUT("/canon", h.Canon.Update)
		}

		documents := apiV1.Group("/documents")
		{
			documents.GET("/:id", h.Documents.Get)
			documents.DELETE("/:id", h.Documents.Delete)
			documents.POST("/:id/reprocess", h.Documents.Reprocess)
			documents.GET("/:id/download", h.Documents.Download)
		}

		apiV1.POST("/analysis/structure", h.Analysis.AnalyzeStructure)
	}
	return r
}
