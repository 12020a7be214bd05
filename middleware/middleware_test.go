package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pnodedash/metrics"
)

func TestRecoverMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(RecoverMiddleware(nil))
	e.GET("/boom", func(c echo.Context) error {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.NewMetrics()

	e := echo.New()
	e.Use(LoggerMiddleware(zap.New(core), m))
	e.GET("/api/nodes/:id", func(c echo.Context) error {
		return c.String(http.StatusNotFound, "nope")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nodes/abc?x=1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "/api/nodes/abc?x=1", ctx["path"])
		assert.Equal(t, int64(404), ctx["status"])
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
	}
}

func TestCORSMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(CORSMiddleware([]string{"https://dash.example"}))
	e.GET("/api/stats", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set(echo.HeaderOrigin, "https://dash.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
