package handler

import (
	"net/http"
	"strconv"
	"time"

	"canon-rag-go/internal/service"
	"canon-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理 multipart 上传：file 必填，ttl_hours、description、run_vision 可选。
func (h *DocumentHandler) Upload(c *gin.Context) {
	agentID, valid := uintParam(c, "agentId")
	if !valid {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少上传文件")
		return
	}

	var ttl time.Duration
	if raw := c.PostForm("ttl_hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours < 0 {
			fail(c, http.StatusBadRequest, "无效的 ttl_hours")
			return
		}
		ttl = time.Duration(hours * float64(time.Hour))
	}
	runVision, _ := strconv.ParseBool(c.PostForm("run_vision"))

	f, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer f.Close()

	doc, err := h.docService.Upload(c.Request.Context(), service.UploadRequest{
		AgentID:     agentID,
		FileName:    fileHeader.Filename,
		Size:        fileHeader.Size,
		Reader:      f,
		Description: c.PostForm("description"),
		TTL:         ttl,
		RunVision:   runVision,
	})
	if err != nil {
		failWithError(c, "Upload", err)
		return
	}
	log.Infof("[DocumentHandler] 文档上传成功, agent: %d, id: %d", agentID, doc.ID)
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "data": doc.ToDTO(), "message": "文档已提交处理"})
}

// List 返回 agent 的全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	agentID, valid := uintParam(c, "agentId")
	if !valid {
		return
	}
	docs, err := h.docService.List(c.Request.Context(), agentID)
	if err != nil {
		failWithError(c, "ListDocuments", err)
		return
	}
	ok(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	doc, err := h.docService.Get(c.Request.Context(), id)
	if err != nil {
		failWithError(c, "GetDocument", err)
		return
	}
	ok(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), id); err != nil {
		failWithError(c, "DeleteDocument", err)
		return
	}
	ok(c, nil)
}

// Reprocess 重新入库，query 参数 run_vision=true 时执行视觉分析。
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	runVision, _ := strconv.ParseBool(c.Query("run_vision"))
	if err := h.docService.Reprocess(c.Request.Context(), id, runVision); err != nil {
		failWithError(c, "ReprocessDocument", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "文档已重新提交处理"})
}

func (h *DocumentHandler) Download(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	info, err := h.docService.DownloadURL(c.Request.Context(), id)
	if err != nil {
		failWithError(c, "DownloadDocument", err)
		return
	}
	ok(c, info)
}
