package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/callbridge/pkg/metrics"
)

const prometheusContentType = "text/plain; version=0.0.4"

// Metrics serves the in-process counters as JSON.
func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   serviceName,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   metrics.GetMetrics(),
	})
}

func (h *Handler) PrometheusMetrics(c *gin.Context) {
	c.Data(http.StatusOK, prometheusContentType, []byte(metrics.GetPrometheusMetrics()))
}
