package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"pnodedash/models"
)

// NetworkStatsResponse is the stats panel payload.
type NetworkStatsResponse struct {
	Stats              models.NetworkStats               `json:"stats"`
	Versions           []models.VersionDistributionEntry `json:"versions"`
	HealthDistribution []models.HealthDistributionEntry  `json:"healthDistribution"`
	Generation         uint64                            `json:"generation"`
	GeneratedAt        time.Time                         `json:"generatedAt"`
}

// GetStats godoc
// @Summary Get network statistics
// @Description Returns node counts, storage, uptime and health aggregates for the current snapshot
// @Tags stats
// @Produce json
// @Success 200 {object} NetworkStatsResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/stats [get]
func (h *Handler) GetStats(c echo.Context) error {
	d, ok, err := h.dashboard(c)
	if !ok {
		return err
	}

	return c.JSON(http.StatusOK, NetworkStatsResponse{
		Stats:              d.Stats,
		Versions:           d.Versions,
		HealthDistribution: d.HealthDistribution,
		Generation:         d.Generation,
		GeneratedAt:        d.GeneratedAt,
	})
}

// GetVersions returns the version distribution
func (h *Handler) GetVersions(c echo.Context) error {
	d, ok, err := h.dashboard(c)
	if !ok {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"latestVersion": d.Stats.LatestVersion,
		"versions":      d.Versions,
		"total":         len(d.Nodes),
	})
}
