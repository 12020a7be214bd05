package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pnodedash/config"
	"pnodedash/models"
	"pnodedash/services"
)

type Handler struct {
	Cfg        *config.Config
	Cache      *services.CacheService
	Aggregator *services.DataAggregator
	Importer   *services.ImportService
	Maps       *services.MapService
	Logger     *zap.Logger

	started time.Time
	now     func() time.Time
}

func NewHandler(cfg *config.Config, cache *services.CacheService, aggregator *services.DataAggregator,
	importer *services.ImportService, maps *services.MapService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Cfg:        cfg,
		Cache:      cache,
		Aggregator: aggregator,
		Importer:   importer,
		Maps:       maps,
		Logger:     logger,
		started:    time.Now(),
		now:        time.Now,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WarningResponse is returned when a request is valid but there is nothing
// to do, like an export with no columns selected.
type WarningResponse struct {
	Warning string `json:"warning"`
}

// dashboard fetches the current dashboard and sets the stale header. When
// nothing is available it writes the 503 itself and returns ok=false.
func (h *Handler) dashboard(c echo.Context) (*models.Dashboard, bool, error) {
	d, stale, err := h.Cache.GetDashboard(c.Request().Context())
	if err != nil {
		h.Logger.Warn("Dashboard unavailable", zap.Error(err))
		return nil, false, c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Node data temporarily unavailable",
		})
	}
	if stale {
		c.Response().Header().Set("X-Data-Stale", "true")
		c.Response().Header().Set("Cache-Control", "max-age=30")
	} else {
		c.Response().Header().Set("Cache-Control", "max-age=60")
	}
	return d, true, nil
}

var errBadFilter = errors.New("invalid filter")

// parseFilter reads status, min_health and max_health. Omitted parameters
// select everything.
func parseFilter(c echo.Context) (models.FilterState, error) {
	f := models.DefaultFilterState()

	if raw := c.QueryParam("status"); raw != "" {
		f.Statuses = nil
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if s != models.StatusOnline && s != models.StatusOffline {
				return f, errBadFilter
			}
			f.Statuses = append(f.Statuses, s)
		}
	}

	var err error
	if f.HealthMin, err = intParam(c, "min_health", 0); err != nil {
		return f, err
	}
	if f.HealthMax, err = intParam(c, "max_health", 100); err != nil {
		return f, err
	}
	if f.HealthMin < 0 || f.HealthMax > 100 || f.HealthMin > f.HealthMax {
		return f, errBadFilter
	}
	return f, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadFilter
	}
	return v, nil
}

func boolParam(c echo.Context, name string, def bool) bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func badFilter(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Invalid filter: status must be online/offline and 0 <= min_health <= max_health <= 100",
	})
}
