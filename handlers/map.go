package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"pnodedash/models"
	"pnodedash/services"
)

// MapResponse is the geo-projected node set.
type MapResponse struct {
	Nodes     []models.MapNode         `json:"nodes"`
	Regions   []models.RegionalCluster `json:"regions"`
	Total     int                      `json:"total"`   // nodes matching the filter
	Located   int                      `json:"located"` // nodes with a known location
	Filters   models.FilterState       `json:"filters"`
	IsDefault bool                     `json:"isDefaultFilter"`
}

// GetMap returns the filtered nodes that could be geolocated. Nodes whose
// lookup fails are left out.
func (h *Handler) GetMap(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return badFilter(c)
	}

	d, ok, err := h.dashboard(c)
	if !ok {
		return err
	}

	nodes := services.ApplyFilters(d.Nodes, filter)
	located := h.Maps.LocateNodes(c.Request().Context(), nodes)

	return c.JSON(http.StatusOK, MapResponse{
		Nodes:     located,
		Regions:   services.RegionalClusters(located),
		Total:     len(nodes),
		Located:   len(located),
		Filters:   filter,
		IsDefault: services.IsDefault(filter),
	})
}
