package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/troikatech/callbridge/pkg/errors"
)

// RequireQuery stores the trimmed query parameter under the same key in the
// gin context. A blank value is answered as an unknown lookup key (404 with
// notFound as the error) since there is nothing to look up.
func RequireQuery(name, notFound string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value := SanitizeString(c.Query(name))
		if value == "" {
			errors.NotFound(c, notFound)
			return
		}
		c.Set(name, value)
		c.Next()
	}
}

// SanitizeString removes potentially dangerous characters from strings
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
