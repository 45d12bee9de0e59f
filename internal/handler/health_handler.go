package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"baria-go/internal/service"
	"baria-go/pkg/health"
)

// HealthHandler serves /health, /health/live and /health/ready.
type HealthHandler struct {
	checker          *health.Checker
	retrievalService service.RetrievalService
}

func NewHealthHandler(checker *health.Checker, retrievalService service.RetrievalService) *HealthHandler {
	return &HealthHandler{checker: checker, retrievalService: retrievalService}
}

// Health reports every component plus the indexed chunk count. Storage
// being down answers 503.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.checker.Run(c.Request.Context())
	body := gin.H{
		"status":     report.Status,
		"components": report.Components,
	}
	stats, err := h.retrievalService.Stats(c.Request.Context())
	body["backend"] = stats.Backend
	if err == nil {
		body["chunks"] = stats.Chunks
	}
	status := http.StatusOK
	if report.Status == health.StatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": health.StatusUp})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.checker.Run(c.Request.Context())
	if report.Status == health.StatusDown {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": report.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": report.Status})
}
