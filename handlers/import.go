package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pnodedash/models"
	"pnodedash/services"
)

// ImportResponse is a committed import together with the dashboard built
// from the imported nodes.
type ImportResponse struct {
	*models.ImportResult
	Dashboard *models.Dashboard `json:"dashboard,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

// readUpload returns the uploaded file text. The body is either the raw
// file or a multipart form with a "file" field.
func (h *Handler) readUpload(c echo.Context) (string, error) {
	req := c.Request()
	limit := h.Cfg.Import.MaxBodyBytes
	if limit > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
	}

	var body io.Reader = req.Body
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", tooLarge(err)
		}
		f, err := fh.Open()
		if err != nil {
			return "", err
		}
		defer f.Close()
		body = f
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", tooLarge(err)
	}
	return string(data), nil
}

func tooLarge(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errBodyTooLarge
	}
	return err
}

func (h *Handler) uploadError(c echo.Context, err error) error {
	if errors.Is(err, errBodyTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "File too large",
		})
	}
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Could not read upload: " + err.Error(),
	})
}

// importError maps parse failures to a 400. The whole file is rejected.
func importError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrUnknownFormat),
		errors.Is(err, services.ErrMalformedCSV),
		errors.Is(err, services.ErrMalformedJSON),
		errors.Is(err, services.ErrNoRows):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

// PreviewImport validates an uploaded file without committing it.
func (h *Handler) PreviewImport(c echo.Context) error {
	text, err := h.readUpload(c)
	if err != nil {
		return h.uploadError(c, err)
	}

	preview, err := h.Importer.Preview(text)
	if err != nil {
		h.Logger.Debug("Import preview rejected", zap.Error(err))
		return importError(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

// Import converts the valid rows of an uploaded file and runs them through
// the metrics pipeline. Invalid rows are skipped and reported.
func (h *Handler) Import(c echo.Context) error {
	text, err := h.readUpload(c)
	if err != nil {
		return h.uploadError(c, err)
	}

	result, err := h.Importer.Import(text)
	if err != nil {
		h.Logger.Debug("Import rejected", zap.Error(err))
		return importError(c, err)
	}

	resp := ImportResponse{ImportResult: result}
	if len(result.Nodes) > 0 {
		resp.Dashboard = h.Aggregator.Build(result.Nodes)
	}

	h.Logger.Info("Imported nodes",
		zap.String("format", string(result.Format)),
		zap.Int("imported", result.ImportedCount),
		zap.Int("skipped", result.SkippedCount))

	return c.JSON(http.StatusOK, resp)
}
