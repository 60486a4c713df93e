// Package profile collects per-route latency statistics for the --profile
// mode of the development server. The collector sits in the middleware
// chain and aggregates by chi route pattern, so /api/experiments/{id} is
// one entry regardless of how many experiments were requested.
package profile

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// reportLimit caps the shutdown report to the slowest routes.
const reportLimit = 30

// RouteStat is the aggregated timing of one route.
type RouteStat struct {
	Route string
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean is the average latency per request.
func (s RouteStat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Collector aggregates request timings. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	routes map[string]*RouteStat
}

func NewCollector() *Collector {
	return &Collector{routes: make(map[string]*RouteStat)}
}

// Middleware times each request and attributes it to its route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)

		route := r.Method + " " + routePattern(r)
		c.mu.Lock()
		stat, ok := c.routes[route]
		if !ok {
			stat = &RouteStat{Route: route}
			c.routes[route] = stat
		}
		stat.Count++
		stat.Total += elapsed
		if elapsed > stat.Max {
			stat.Max = elapsed
		}
		c.mu.Unlock()
	})
}

// routePattern resolves the matched chi pattern after the handler ran;
// unmatched requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// Top returns up to n routes ordered by cumulative time spent in them.
func (c *Collector) Top(n int) []RouteStat {
	c.mu.Lock()
	stats := make([]RouteStat, 0, len(c.routes))
	for _, s := range c.routes {
		stats = append(stats, *s)
	}
	c.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Total > stats[j].Total })
	if len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

// Report logs the slowest routes, called once at shutdown.
func (c *Collector) Report(log *slog.Logger) {
	stats := c.Top(reportLimit)
	if len(stats) == 0 {
		log.Info("profile: no requests recorded")
		return
	}
	log.Info("profile: slowest routes by cumulative time", slog.Int("routes", len(stats)))
	for _, s := range stats {
		log.Info("profile",
			slog.String("route", s.Route),
			slog.Int64("count", s.Count),
			slog.Duration("total", s.Total),
			slog.Duration("mean", s.Mean()),
			slog.Duration("max", s.Max),
		)
	}
}
