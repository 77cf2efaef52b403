package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceIDHeader   = "X-Trace-ID"
	requestIDHeader = "X-Request-ID"
)

// TraceMiddleware adds trace ID and request ID to context. An incoming
// X-Trace-ID wins, then the active span's trace id, then a fresh id.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" {
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
			}
		}

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("trace_id", traceID)
		c.Set("request_id", requestID)

		c.Header(traceIDHeader, traceID)
		c.Header(requestIDHeader, requestID)

		c.Next()
	}
}
