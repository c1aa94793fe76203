// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"canon-rag-go/internal/middleware"
	"canon-rag-go/internal/service"
	"canon-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": data, "message": "success"})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message})
}

// failWithError 把服务层错误映射为 HTTP 状态码。
func failWithError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		log.Errorw(op+": failed", "error", err, "requestId", c.GetString(middleware.RequestIDKey))
		fail(c, http.StatusInternalServerError, "服务器内部错误")
	}
}

// uintParam 解析路径中的正整数 ID。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, "无效的 "+name)
		return 0, false
	}
	return uint(v), true
}
