package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/posdesk/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("API_ORIGIN", "http://backend.local:8081")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, RendererGotenberg, cfg.PrintRenderer)
	assert.Equal(t, "AED", cfg.Currency)
	assert.Equal(t, "var/spool", cfg.SpoolDir)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"renderer": {"PRINT_RENDERER": "wkhtml"},
		"timezone": {"STORE_TIMEZONE": "Mars/Olympus"},
		"currency": {"CURRENCY": "NOTACODE"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("API_ORIGIN", "http://backend.local")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"posdesk"`)
	assert.Contains(t, out, `"env":"staging"`)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "production"}, Metrics: metrics})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "posdesk_http_requests_total"))
}

func TestMimeTypesRegistered(t *testing.T) {
	for ext := range downloadTypes {
		assert.NotEmpty(t, mime.TypeByExtension(ext), ext)
	}
}

func TestNewServicesChecksGotenberg(t *testing.T) {
	var health atomic.Int32
	gotenberg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			health.Add(1)
		}
	}))
	defer gotenberg.Close()

	t.Setenv("API_ORIGIN", "http://backend.local")
	t.Setenv("GOTENBERG_URL", gotenberg.URL)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SPOOL_DIR", t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)

	services, err := NewServices(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer services.Close()

	assert.Equal(t, int32(1), health.Load())
	assert.Nil(t, services.Redis)
	assert.NotNil(t, services.Handler())
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "false")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
