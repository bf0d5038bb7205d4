package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncateString("short", 10))
	require.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	require.Equal(t, "...", truncateString("abcdef", 2))
}

func TestGinMiddlewareRequestID(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, "debug", true))

	router := gin.New()
	router.Use(GinMiddleware(log))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	})

	require.True(t, strings.Contains(buf.String(), `"path":"/ping"`))
}

func TestGocronLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := Gocron(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	l.Info("job started", "job", "sql_maintenance")
	require.Empty(t, buf.String())

	l.Error("job failed", "job", "sql_maintenance")
	require.Contains(t, buf.String(), "source=gocron")
	require.Contains(t, buf.String(), "job=sql_maintenance")
}
