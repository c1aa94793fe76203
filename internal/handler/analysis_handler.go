package handler

import (
	"net/http"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler 对任意文本执行结构分析，不落库。
type AnalysisHandler struct {
	analyzer *pipeline.StructureAnalyzer
}

// NewAnalysisHandler 创建一个新的 AnalysisHandler 实例。
func NewAnalysisHandler(analyzer *pipeline.StructureAnalyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer}
}

// AnalyzeRequest 是 POST /analysis/structure 的请求体。
type AnalyzeRequest struct {
	Text     string                   `json:"text" binding:"required"`
	Metadata model.ExtractionMetadata `json:"metadata"`
}

func (h *AnalysisHandler) AnalyzeStructure(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	ok(c, h.analyzer.Analyze(req.Text, req.Metadata))
}
