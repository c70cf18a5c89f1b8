package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefleet/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request body size. Requests declaring an oversized
// Content-Length are refused before any handler runs.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size"))
			return
		}

		// Chunked uploads declare no length, so the reader enforces the
		// same cap while the handler consumes the body.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
