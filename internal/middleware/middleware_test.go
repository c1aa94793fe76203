package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, c.GetString(RequestIDKey)+":"+string(body))
	})
	return r
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hi")))
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id+":hi", w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("again"))
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123:again", w.Body.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate([]byte("short")))
	long := strings.Repeat("x", maxLoggedBody+10)
	got := truncate([]byte(long))
	assert.True(t, strings.HasSuffix(got, "...(truncated)"))
	assert.Len(t, got, maxLoggedBody+len("...(truncated)"))
}
