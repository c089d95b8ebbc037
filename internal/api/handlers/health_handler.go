package handlers

import (
	"net/http"
	"time"

	"course-enrollment/internal/config"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	cache interfaces.CacheService
}

// NewHealthHandler creates a new health handler. cache may be nil when the
// cache is disabled.
func NewHealthHandler(cache interfaces.CacheService) *HealthHandler {
	return &HealthHandler{cache: cache}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	cfg := config.Get()

	services := make(map[string]string)
	status := "healthy"

	if h.cache != nil {
		if err := h.cache.Health(c.Request.Context()); err != nil {
			services["cache"] = "unhealthy"
			status = "degraded"
		} else {
			services["cache"] = "healthy"
		}
	} else {
		services["cache"] = "disabled"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   cfg.App.Version,
		Services:  services,
	}

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	response := map[string]interface{}{
		"ready":     true,
		"timestamp": time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// LivenessCheck handles GET /live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	response := map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	}

	c.JSON(http.StatusOK, response)
}
