package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"pnodedash/models"
	"pnodedash/services"
	"pnodedash/utils"
)

// NodesResponse represents the paginated nodes response
type NodesResponse struct {
	Nodes       []models.Node      `json:"nodes"`
	Pagination  PaginationMeta     `json:"pagination"`
	Filters     models.FilterState `json:"filters"`
	IsDefault   bool               `json:"isDefaultFilter"`
	Generation  uint64             `json:"generation"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// PaginationMeta represents pagination metadata
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// GetNodes returns the ranked nodes, filtered, sorted and paginated.
//
// Query: status (online,offline), min_health, max_health, sort (rank,
// health, uptime, storage, version), order (asc, desc), page, limit.
func (h *Handler) GetNodes(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return badFilter(c)
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	d, ok, err := h.dashboard(c)
	if !ok {
		return err
	}

	nodes := services.ApplyFilters(d.Nodes, filter)
	sortNodes(nodes, c.QueryParam("sort"), c.QueryParam("order"))

	totalNodes := len(nodes)
	totalPages := (totalNodes + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	startIdx := (page - 1) * limit
	endIdx := startIdx + limit
	if endIdx > totalNodes {
		endIdx = totalNodes
	}

	return c.JSON(http.StatusOK, NodesResponse{
		Nodes: nodes[startIdx:endIdx],
		Pagination: PaginationMeta{
			Page:       page,
			Limit:      limit,
			TotalItems: totalNodes,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
		Filters:     filter,
		IsDefault:   services.IsDefault(filter),
		Generation:  d.Generation,
		GeneratedAt: d.GeneratedAt,
	})
}

// GetNode returns a single node by pubkey or address.
func (h *Handler) GetNode(c echo.Context) error {
	id := c.Param("id")

	node, stale, err := h.Cache.GetNode(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Node data temporarily unavailable",
		})
	}
	if node == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Node not found",
		})
	}

	if stale {
		c.Response().Header().Set("X-Data-Stale", "true")
	}

	return c.JSON(http.StatusOK, NodeDetailResponse{
		Node:           *node,
		HealthColor:    utils.HealthColor(node.HealthScore),
		HealthLabel:    utils.HealthLabel(node.HealthScore),
		BadgeVariant:   utils.HealthBadgeVariant(node.HealthScore),
		UpgradeMessage: h.upgradeMessage(c, node),
	})
}

// NodeDetailResponse adds display hints to a node.
type NodeDetailResponse struct {
	models.Node
	HealthColor    string `json:"healthColor"`
	HealthLabel    string `json:"healthLabel"`
	BadgeVariant   string `json:"badgeVariant"`
	UpgradeMessage string `json:"upgradeMessage,omitempty"`
}

func (h *Handler) upgradeMessage(c echo.Context, n *models.Node) string {
	if !n.IsUpgradeNeeded {
		return ""
	}
	latest := h.Cfg.Scoring.FallbackLatestVersion
	if d, _, err := h.Cache.GetDashboard(c.Request().Context()); err == nil && d.Stats.LatestVersion != utils.NoVersion {
		latest = d.Stats.LatestVersion
	}
	return utils.GetUpgradeMessage(n.Version, &utils.VersionConfig{
		CurrentStable: latest,
		MinSupported:  h.Cfg.Scoring.MinSupported,
		Deprecated:    h.Cfg.Scoring.Deprecated,
	})
}

// sortNodes sorts in place. Ties keep rank order. The default is rank
// ascending; every other field defaults to descending.
func sortNodes(nodes []models.Node, field, order string) {
	if field == "" {
		field = "rank"
	}
	asc := order == "asc"
	if order == "" {
		asc = field == "rank"
	}

	cmp := func(a, b *models.Node) int {
		switch field {
		case "health":
			return compareInt(a.HealthScore, b.HealthScore)
		case "uptime":
			return compareFloat(a.Uptime, b.Uptime)
		case "storage":
			return compareFloat(a.StorageUsed, b.StorageUsed)
		case "version":
			return utils.CompareVersions(a.Version, b.Version)
		default:
			return compareInt(a.Rank, b.Rank)
		}
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		r := cmp(&nodes[i], &nodes[j])
		if asc {
			return r < 0
		}
		return r > 0
	})
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
