package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine() *gin.Engine {
	log := logger.NewNop()
	engine := gin.New()
	engine.Use(RequestID(), Recovery(log), ErrorHandler(log), RequestLogger(log))
	return engine
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	engine := newEngine()
	var seen string
	engine.GET("/ping", func(c *gin.Context) {
		seen = c.GetString("request_id")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	engine := newEngine()
	engine.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error occurred")
}

func TestErrorHandler_RendersAttachedError(t *testing.T) {
	engine := newEngine()
	engine.GET("/missing", func(c *gin.Context) {
		_ = c.Error(errors.NewNotFoundError("node not found", "eu-9"))
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"not_found"`)
}

func captureLogger() (logger.Interface, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return logger.NewLoggerWithSlog(slog.New(handler)), &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line), raw)
		lines = append(lines, line)
	}
	return lines
}

func TestRequestLogger_TagsNodeAndGuild(t *testing.T) {
	log, buf := captureLogger()
	engine := gin.New()
	engine.Use(RequestID(), RequestLogger(log))
	engine.POST("/nodes/:name/disconnect", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/failovers", func(c *gin.Context) { c.Status(http.StatusOK) })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/nodes/eu-1/disconnect", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/failovers?guild_id=42", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	lines := logLines(t, buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "node action via status API", lines[0]["msg"])
	assert.Equal(t, "/nodes/:name/disconnect", lines[0]["route"])
	assert.Equal(t, "eu-1", lines[0]["node"])
	assert.NotEmpty(t, lines[0]["request_id"])

	assert.Equal(t, "DEBUG", lines[1]["level"])
	assert.Equal(t, "42", lines[1]["guild_id"])
	assert.NotContains(t, lines[1], "node")

	assert.Equal(t, "WARN", lines[2]["level"])
	assert.Equal(t, "unmatched", lines[2]["route"])
}

func TestRequestLogger_IncludesHandlerError(t *testing.T) {
	log, buf := captureLogger()
	engine := gin.New()
	engine.Use(RequestLogger(log), ErrorHandler(logger.NewNop()))
	engine.GET("/nodes/:name", func(c *gin.Context) {
		_ = c.Error(errors.NewNotFoundError("node not found", c.Param("name")))
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nodes/ghost", nil))

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "ghost", lines[0]["node"])
	assert.Contains(t, lines[0]["error"], "node not found")
}
