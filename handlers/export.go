package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"pnodedash/models"
	"pnodedash/services"
)

// Export downloads the filtered nodes as CSV or JSON.
//
// Query: format (csv, json), columns (comma separated keys, empty means
// all), header (CSV, default true), stats (JSON, default false) plus the
// node filters.
func (h *Handler) Export(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return badFilter(c)
	}

	format := models.ExportFormat(c.QueryParam("format"))
	if format == "" {
		format = models.ExportCSV
	}
	if format != models.ExportCSV && format != models.ExportJSON {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("Unsupported export format %q", format),
		})
	}

	var columns []models.ExportColumn
	if c.QueryParams().Has("columns") && c.QueryParam("columns") == "" {
		columns = nil
	} else {
		columns, err = services.ParseColumns(c.QueryParam("columns"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
	}

	d, ok, err := h.dashboard(c)
	if !ok {
		return err
	}

	opts := models.ExportOptions{
		Format:        format,
		Columns:       columns,
		IncludeHeader: boolParam(c, "header", true),
	}
	if boolParam(c, "stats", false) {
		stats := d.Stats
		opts.Stats = &stats
	}

	now := h.now()
	out, err := services.Export(services.ApplyFilters(d.Nodes, filter), opts, now)
	switch {
	case errors.Is(err, services.ErrNoColumns), errors.Is(err, services.ErrNoNodes):
		return c.JSON(http.StatusBadRequest, WarningResponse{Warning: err.Error()})
	case err != nil:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	filename := fmt.Sprintf("pnodes-%s.%s", now.UTC().Format("20060102-150405"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))

	if format == models.ExportJSON {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, []byte(out))
	}
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", []byte(out))
}
