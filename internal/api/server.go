// Package api serves the resolver, brand registry and run history over HTTP.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/siteresolve/internal/config"
	"github.com/sells-group/siteresolve/internal/monitoring"
	"github.com/sells-group/siteresolve/internal/sitematch"
	"github.com/sells-group/siteresolve/internal/store"
)

const (
	defaultMaxBatchSize = 1000
	defaultMaxBodyBytes = 4 << 20
)

// Options holds HTTP server settings.
type Options struct {
	// Addr is the TCP address the server listens on, e.g. ":8080".
	Addr           string
	CORSOrigins    []string
	MaxBatchSize   int
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	// LookbackHours is the window reported by /v1/stats.
	LookbackHours int
}

// NewOptions maps the server and monitoring configuration to Options.
func NewOptions(cfg *config.Config, port int) Options {
	if port == 0 {
		port = cfg.Server.Port
	}
	return Options{
		Addr:           fmt.Sprintf(":%d", port),
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxBatchSize:   cfg.Server.MaxBatchSize,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		LookbackHours:  cfg.Monitoring.LookbackWindowHours,
	}
}

// Deps are the services behind the routes. Store and Collector may be nil,
// in which case the run endpoints answer 503.
type Deps struct {
	Resolver  *sitematch.Resolver
	Store     store.Store
	Collector *monitoring.Collector
	Metrics   *monitoring.Metrics
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the route tree with CORS, request ids, panic recovery and
// access logging.
func NewRouter(deps Deps, opts Options) http.Handler {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaultMaxBatchSize
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := newHandler(deps, opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", h.resolve)
		r.Post("/resolve/batch", h.resolveBatch)

		r.Get("/brands", h.listBrands)
		r.Get("/brands/match", h.matchBrand)

		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
		r.Get("/runs/{id}/resolutions", h.listResolutions)
		r.Get("/stats", h.stats)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// NewServer wraps the router in an *http.Server.
func NewServer(deps Deps, opts Options) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(deps, opts),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
