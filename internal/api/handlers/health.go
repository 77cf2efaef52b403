package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "callbridge"

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": h.version})
}

// Ready reports the state of each integration. Optional integrations that
// are not configured do not degrade the service.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"api":     "healthy",
		"redis":   "disabled",
		"livekit": "not_configured",
		"twilio":  "not_configured",
		"sip":     "not_configured",
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			services["redis"] = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	if h.rooms != nil {
		if _, err := h.rooms.ListRoomNames(ctx); err != nil {
			services["livekit"] = "unhealthy"
		} else {
			services["livekit"] = "healthy"
		}
	}

	if h.orch != nil && h.orch.DialerConfigured() {
		services["twilio"] = "configured"
	}
	if h.cfg != nil && h.cfg.LiveKitSIPEndpoint != "" {
		services["sip"] = "configured"
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status == "unhealthy" {
			overallStatus = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().Format(time.RFC3339),
		Services:  services,
	})
}
