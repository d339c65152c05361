package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pylon-apis/pylon/internal/interfaces/http/handlers"
)

type routeDeps struct {
	healthHandler       *handlers.HealthHandler
	capabilitiesHandler *handlers.CapabilitiesHandler
	dispatchHandler     *handlers.DispatchHandler
	chainHandler        *handlers.ChainHandler
	usageHandler        *handlers.UsageHandler
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Probes and metrics
	r.GET("/health", d.healthHandler.Health)
	r.GET("/status", d.healthHandler.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Catalog surfaces (free)
	r.GET("/capabilities", d.capabilitiesHandler.List)
	r.GET("/mcp", d.capabilitiesHandler.MCP)
	r.GET("/providers", d.capabilitiesHandler.Providers)
	r.GET("/discover", d.capabilitiesHandler.Discover)

	// Paid dispatch
	r.POST("/do", d.dispatchHandler.Dispatch)
	r.POST("/do/chain", d.chainHandler.Chain)

	// Spend reporting
	r.GET("/usage", d.usageHandler.Totals)
	r.GET("/usage/capabilities", d.usageHandler.ByCapability)
	r.GET("/usage/timeline", d.usageHandler.Timeline)
}
