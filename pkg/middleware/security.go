package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/troikatech/callbridge/pkg/errors"
)

// SecurityHeaders sets conservative response headers on every response
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// RequestSizeLimit rejects bodies larger than maxBytes. Requests without a
// declared length are capped by http.MaxBytesReader instead.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			errors.RequestTooLarge(c, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
