package profile_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tissuemaps/tmserver/internal/profile"
)

func TestCollectorAggregatesByRoutePattern(t *testing.T) {
	c := profile.NewCollector()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/experiments/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/experiments/MQ==", "/experiments/Mg==", "/slow"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	stats := c.Top(10)
	require.Len(t, stats, 2)

	byRoute := make(map[string]profile.RouteStat, len(stats))
	for _, s := range stats {
		byRoute[s.Route] = s
	}
	exp, ok := byRoute["GET /experiments/{id}"]
	require.True(t, ok, "expected the two experiment requests to share one pattern")
	assert.Equal(t, int64(2), exp.Count)

	// The deliberately slow route dominates cumulative time.
	assert.Equal(t, "GET /slow", stats[0].Route)
	assert.GreaterOrEqual(t, stats[0].Total, 5*time.Millisecond)
}

func TestTopLimitsEntries(t *testing.T) {
	c := profile.NewCollector()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/a", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/b", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/c", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/a", "/b", "/c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Len(t, c.Top(2), 2)
}

func TestReportWritesEachRoute(t *testing.T) {
	c := profile.NewCollector()
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	var buf bytes.Buffer
	c.Report(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Contains(t, buf.String(), "GET /ping")
}

func TestReportEmptyCollector(t *testing.T) {
	c := profile.NewCollector()
	var buf bytes.Buffer
	c.Report(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Contains(t, buf.String(), "no requests recorded")
}
