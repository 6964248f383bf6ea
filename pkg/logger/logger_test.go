package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), From(context.Background()))
}

func TestMiddleware_CarriesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(base))
	r.GET("/x", func(c *gin.Context) {
		From(c.Request.Context()).Info("from engine")
		assert.Same(t, FromGin(c), From(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "rid-1", rec.Header().Get(headerRequestID))
	assert.Contains(t, buf.String(), `"msg":"from engine","request_id":"rid-1"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("local", ""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("production", ""))
	assert.Equal(t, slog.LevelWarn, ParseLevel("local", "warn"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("production", "DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("production", "verbose"))
}

func TestMiddleware_HealthChecksLogAtDebug(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := NewWriter(&buf, "production", "")

	r := gin.New()
	r.Use(Middleware(base))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, buf.String())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Contains(t, buf.String(), `"path":"/v1/me"`)
}
