package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// GetHealth returns OK
func (h *Handler) GetHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// GetStatus returns backend status
func (h *Handler) GetStatus(c echo.Context) error {
	status := map[string]interface{}{
		"status":    "running",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"cacheMode": string(h.Cache.GetCacheMode()),
		"timestamp": h.now(),
	}

	d, stale, err := h.Cache.GetDashboard(c.Request().Context())
	if err != nil {
		status["status"] = "degraded"
		status["error"] = err.Error()
		return c.JSON(http.StatusOK, status)
	}

	status["knownNodes"] = len(d.Nodes)
	status["onlineNodes"] = d.Stats.OnlineNodes
	status["latestVersion"] = d.Stats.LatestVersion
	status["generation"] = d.Generation
	status["generatedAt"] = d.GeneratedAt
	status["stale"] = stale
	return c.JSON(http.StatusOK, status)
}
