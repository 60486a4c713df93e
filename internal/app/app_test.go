package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tissuemaps/tmserver/internal/app"
	"github.com/tissuemaps/tmserver/internal/auth"
	"github.com/tissuemaps/tmserver/internal/config"
	"github.com/tissuemaps/tmserver/internal/profile"
	"github.com/tissuemaps/tmserver/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.SecretKey = "test-secret"
	cfg.Storage.Home = t.TempDir()
	return &cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusEndpointNeedsNoAuth(t *testing.T) {
	handler := app.New(testConfig(t), store.NewMemory(), discardLogger(), app.Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIRequiresAuth(t *testing.T) {
	handler := app.New(testConfig(t), store.NewMemory(), discardLogger(), app.Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/experiments", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "NotAuthorizedError")
}

func TestLoginThenAuthenticatedRequest(t *testing.T) {
	s := store.NewMemory()
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), "devuser", "dev@example.org", hash)
	require.NoError(t, err)

	handler := app.New(testConfig(t), s, discardLogger(), app.Options{})

	body := bytes.NewBufferString(`{"username":"devuser","password":"s3cret"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth", body))
	require.Equal(t, http.StatusOK, rec.Code)
	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.Header.Set("Authorization", "JWT "+loginResp.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestDefaultSecretKeyWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := config.Default()
	cfg.Storage.Home = t.TempDir()

	app.New(&cfg, store.NewMemory(), logger, app.Options{})
	assert.Contains(t, buf.String(), "secret key")
}

func TestProfilerExposesPprof(t *testing.T) {
	collector := profile.NewCollector()
	handler := app.New(testConfig(t), store.NewMemory(), discardLogger(),
		app.Options{Profiler: collector})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The collector saw the request.
	assert.NotEmpty(t, collector.Top(1))
}

func TestPprofAbsentWithoutProfiler(t *testing.T) {
	handler := app.New(testConfig(t), store.NewMemory(), discardLogger(), app.Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	handler := app.New(testConfig(t), store.NewMemory(), discardLogger(), app.Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
