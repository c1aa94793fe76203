package handler

import (
	"net/http"
	"strconv"
	"strings"

	"canon-rag-go/internal/service"
	"canon-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理 GET /agents/:agentId/search?query=&limit=。
func (h *SearchHandler) Search(c *gin.Context) {
	agentID, valid := uintParam(c, "agentId")
	if !valid {
		return
	}
	query := strings.TrimSpace(c.Query("query"))
	log.Infof("[SearchHandler] 收到检索请求, agent: %d, query: %s", agentID, query)
	if query == "" {
		log.Warnf("[SearchHandler] 检索请求失败: query 参数为空")
		fail(c, http.StatusBadRequest, "无效的查询参数")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}

	results, err := h.searchService.SearchDocumentChunks(c.Request.Context(), agentID, query, limit)
	if err != nil {
		failWithError(c, "Search", err)
		return
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	ok(c, results)
}
