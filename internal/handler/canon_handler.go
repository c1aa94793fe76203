package handler

import (
	"net/http"

	"canon-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// CanonHandler 管理 agent 的正典锁定。
type CanonHandler struct {
	canonService service.CanonService
}

// NewCanonHandler 创建一个新的 CanonHandler 实例。
func NewCanonHandler(canonService service.CanonService) *CanonHandler {
	return &CanonHandler{canonService: canonService}
}

// UpdateCanonRequest 的 sources 可以混合数字与字符串，空数组表示取消锁定。
type UpdateCanonRequest struct {
	Sources []any `json:"sources"`
}

func (h *CanonHandler) Get(c *gin.Context) {
	agentID, valid := uintParam(c, "agentId")
	if !valid {
		return
	}
	ids, err := h.canonService.GetSources(c.Request.Context(), agentID)
	if err != nil {
		failWithError(c, "GetCanon", err)
		return
	}
	ok(c, gin.H{"agentId": agentID, "sources": ids})
}

func (h *CanonHandler) Update(c *gin.Context) {
	agentID, valid := uintParam(c, "agentId")
	if !valid {
		return
	}
	var req UpdateCanonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	ids, err := h.canonService.UpdateSources(c.Request.Context(), agentID, req.Sources)
	if err != nil {
		failWithError(c, "UpdateCanon", err)
		return
	}
	ok(c, gin.H{"agentId": agentID, "sources": ids})
}
