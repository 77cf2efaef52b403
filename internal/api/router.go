package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/troikatech/callbridge/internal/api/handlers"
	"github.com/troikatech/callbridge/pkg/env"
	"github.com/troikatech/callbridge/pkg/middleware"
	"github.com/troikatech/callbridge/pkg/otel"
)

// NewRouter registers every route of the service. redisClient may be nil,
// which disables rate limiting and idempotent replay.
func NewRouter(cfg *env.Config, h *handlers.Handler, redisClient redis.Cmdable) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Before TraceMiddleware so the trace id header matches the span.
	if cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		for _, origin := range strings.Split(cfg.CORSAllowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, origin)
			}
		}
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Idempotency-Key"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(redisClient, cfg.APIRateLimitRPM)

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/healthz", h.Healthz)
	router.GET("/health/ready", h.Ready)
	router.GET("/metrics", h.Metrics)
	router.GET("/metrics/prometheus", h.PrometheusMetrics)

	call := router.Group("/call")
	call.Use(rateLimiter.Middleware())
	{
		call.POST("/initiate", middleware.IdempotencyMiddleware(redisClient), h.InitiateCall)
		call.GET("/status", middleware.RequireQuery("call_id", "Call not found"), h.GetCallStatus)
		call.GET("/config", middleware.RequireQuery("room_name", "Room config not found"), h.GetCallConfig)
	}

	// Carrier callbacks are not rate limited: dropping one would strand a
	// live call.
	telephony := router.Group("/webhook/telephony")
	{
		telephony.POST("/answer", h.TelephonyAnswer)
		telephony.POST("/status", h.TelephonyStatus)
		telephony.POST("/dial-status", h.TelephonyDialStatus)
	}

	router.POST("/webhook/livekit", h.LiveKitWebhook)

	return router
}
