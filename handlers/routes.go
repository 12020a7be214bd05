package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"pnodedash/metrics"
	"pnodedash/middleware"
)

// NewServer builds the echo instance with middleware and every route.
func NewServer(h *Handler, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RecoverMiddleware(h.Logger))
	e.Use(middleware.LoggerMiddleware(h.Logger, m))
	e.Use(middleware.CORSMiddleware(h.Cfg.Server.AllowedOrigins))

	RegisterRoutes(e, h, m)
	return e
}

// RegisterRoutes wires handlers to paths.
func RegisterRoutes(e *echo.Echo, h *Handler, m *metrics.Metrics) {
	cacheHandlers := NewCacheHandlers(h.Cache)

	// System
	e.GET("/health", h.GetHealth)
	e.GET("/cache/status", cacheHandlers.GetCacheStatus)
	e.POST("/cache/clear", cacheHandlers.ClearCache) // admin
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	api := e.Group("/api")
	api.GET("/status", h.GetStatus)

	// Nodes
	api.GET("/nodes", h.GetNodes)
	api.GET("/nodes/:id", h.GetNode)
	api.GET("/map", h.GetMap)

	// Stats
	api.GET("/stats", h.GetStats)
	api.GET("/versions", h.GetVersions)

	// Import / export
	api.POST("/import/preview", h.PreviewImport)
	api.POST("/import", h.Import)
	api.GET("/export", h.Export)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
}
