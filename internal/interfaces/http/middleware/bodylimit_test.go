package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/storefleet/backend/internal/interfaces/http/dto"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	upload := func(limit int64, body string, declaredLength int64) (*httptest.ResponseRecorder, *bool) {
		reached := false
		engine := gin.New()
		engine.Use(BodyLimit(limit))
		engine.POST("/upload", func(c *gin.Context) {
			reached = true
			if _, err := io.ReadAll(c.Request.Body); err != nil {
				c.String(http.StatusBadRequest, "body too large")
				return
			}
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
		req.ContentLength = declaredLength
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec, &reached
	}

	t.Run("small bodies pass through", func(t *testing.T) {
		rec, _ := upload(1024, "small body", 10)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("declared oversize never reaches the handler", func(t *testing.T) {
		rec, reached := upload(100, strings.Repeat("x", 200), 200)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, errorCode(t, rec))
		assert.False(t, *reached)
	})

	t.Run("undeclared length is capped during the read", func(t *testing.T) {
		// ContentLength -1 mimics a chunked upload, so the refusal can
		// only come from the wrapped reader.
		rec, reached := upload(50, strings.Repeat("x", 100), -1)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, *reached)
	})

	t.Run("bodyless requests are unaffected", func(t *testing.T) {
		engine := gin.New()
		engine.Use(BodyLimit(10))
		engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
