package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDKey 是请求 ID 在 gin.Context 中的 key。
	RequestIDKey = "requestId"
	// RequestIDHeader 是请求 ID 的 HTTP 头。
	RequestIDHeader = "X-Request-ID"
)

// RequestID 沿用调用方传入的 X-Request-ID，没有时生成一个新的 UUID，并写回响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
