// Package app builds and runs the tmserver HTTP application. The factory
// keeps construction separate from serving, so tests can exercise the full
// middleware chain against an in-memory store without opening a socket.
package app

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tissuemaps/tmserver/internal/api"
	"github.com/tissuemaps/tmserver/internal/auth"
	"github.com/tissuemaps/tmserver/internal/config"
	"github.com/tissuemaps/tmserver/internal/profile"
	"github.com/tissuemaps/tmserver/internal/store"
)

// Options tunes optional parts of the application.
type Options struct {
	// Profiler, when non-nil, times every request and exposes
	// /debug/pprof for deeper inspection.
	Profiler *profile.Collector
}

// New assembles the HTTP application: middleware chain, token issuer,
// login endpoint, authenticated API, and health endpoint.
func New(cfg *config.Config, s store.Store, logger *slog.Logger, opts Options) http.Handler {
	if cfg.Auth.SecretKey == config.DefaultSecretKey {
		logger.Warn("the application secret key is set to its default value; " +
			"set auth.secret_key or TM_SECRET_KEY before exposing the server")
	}

	issuer := auth.NewTokenIssuer(cfg.Auth.SecretKey, cfg.Auth.JWTExpiration.Std())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if opts.Profiler != nil {
		r.Use(opts.Profiler.Middleware)
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/auth", api.LoginHandler(s, issuer, logger))

	apiHandler := api.New(s, logger, cfg.Storage.Home)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Required(issuer))
		r.Mount("/", apiHandler.Router())
	})

	if opts.Profiler != nil {
		r.Route("/debug/pprof", func(r chi.Router) {
			r.Get("/", pprof.Index)
			r.Get("/cmdline", pprof.Cmdline)
			r.Get("/profile", pprof.Profile)
			r.Get("/symbol", pprof.Symbol)
			r.Get("/trace", pprof.Trace)
			r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
				pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
			})
		})
	}

	return r
}

// requestLogger logs one line per request after it finished.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
