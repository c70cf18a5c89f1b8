// Package middleware provides HTTP middleware for the storefront dashboard API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxRequestIDLength bounds request IDs read from untrusted headers.
const maxRequestIDLength = 128

// TracingConfig controls the per-request span middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing traces requests under the default service name.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(TracingConfig{ServiceName: "storefleet-backend", Enabled: true})
}

// TracingWithConfig opens one span per request, named "METHOD route" by
// otelgin. Request-scoped attributes are attached by SpanEnrichment,
// which must sit after this middleware so it runs while the span is
// still open.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passthrough
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnrichment tags the active span with the request ID and, once the
// handlers have run, the authenticated username and an error status for
// 4xx and 5xx responses. The username comes from the JWT claims further
// down the chain, which is why the tagging happens after Next.
func SpanEnrichment() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		if id := requestIDFrom(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if username := GetJWTUsername(c); username != "" {
			span.SetAttributes(attribute.String("username", username))
		}

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			message := http.StatusText(status)
			if message == "" {
				message = "request failed"
			}
			span.SetStatus(codes.Error, message)
			span.SetAttributes(attribute.Int("http.status_code", status))
		}
	}
}

// requestIDFrom prefers the ID assigned by RequestID and falls back to
// the raw header, truncated so an oversized header cannot bloat the span.
func requestIDFrom(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if len(id) > maxRequestIDLength {
		id = id[:maxRequestIDLength]
	}
	return id
}
