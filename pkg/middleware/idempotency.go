package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"
const idempotencyTTL = 24 * time.Hour

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key so a retried initiate does not dial twice. Only successful
// responses are stored. A nil client disables it.
func IdempotencyMiddleware(client redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		cacheKey := "idempotency:" + hashIdempotencyKey(key)
		ctx := c.Request.Context()

		val, err := client.Get(ctx, cacheKey).Result()
		if err == nil && val != "" {
			c.Header("X-Idempotency-Key-Used", "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(val))
			c.Abort()
			return
		}
		if err != nil && err != redis.Nil {
			logger.Log.Warn("Idempotency lookup failed", zap.Error(err))
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if rec.Status() == http.StatusOK && rec.body.Len() > 0 {
			if err := client.Set(ctx, cacheKey, rec.body.String(), idempotencyTTL).Err(); err != nil {
				logger.Log.Warn("Failed to store idempotent response", zap.Error(err))
			}
		}
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func hashIdempotencyKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
