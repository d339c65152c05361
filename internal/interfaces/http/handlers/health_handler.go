package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pylon-apis/pylon/internal/reliability"
	"github.com/pylon-apis/pylon/internal/registry"
)

// HealthHandler answers liveness and reliability probes
type HealthHandler struct {
	registry *registry.Registry
	executor *reliability.Executor
	version  string
	started  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reg *registry.Registry, executor *reliability.Executor, version string) *HealthHandler {
	return &HealthHandler{
		registry: reg,
		executor: executor,
		version:  version,
		started:  time.Now(),
	}
}

// Health is the liveness probe
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      "pylon",
		"version":      h.version,
		"capabilities": h.registry.Len(),
	})
}

// Status reports per-capability reliability: circuit state, call counts and
// average latency for every capability called since startup.
// GET /status
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"capabilities":  h.executor.Status(),
	})
}
