package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	idgen "github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

var apiJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults applied when Options fields are zero.
const (
	DefaultRequestTimeout = 5 * time.Minute
	DefaultEnqueueTimeout = 5 * time.Second
)

// CrawlService is the crawl surface the API drives.
type CrawlService interface {
	Submit(ctx context.Context, req crawler.Request) (crawler.QueueItem, error)
	Run(ctx context.Context, req crawler.Request) (crawler.Result, error)
	Abandon(ctx context.Context, jobID string, cause error)
	PresetNames() []string
}

// Enqueuer accepts submitted crawls for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
}

// Options configure a Server.
type Options struct {
	// APIKey guards the /v1 routes when non-empty.
	APIKey         string
	AllowedOrigins []string
	RequestTimeout time.Duration
	EnqueueTimeout time.Duration
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the crawl service and job store.
type Server struct {
	router   chi.Router
	svc      CrawlService
	jobs     crawler.JobStore
	queue    Enqueuer
	opts     Options
	logger   *zap.Logger
	newReqID func() string
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc CrawlService, jobs crawler.JobStore, queue Enqueuer, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	metrics.Init()
	s := &Server{
		svc:      svc,
		jobs:     jobs,
		queue:    queue,
		opts:     opts,
		logger:   logger,
		newReqID: idgen.New().NewRequestID,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Get("/presets", s.listPresets)
		r.Post("/crawls", s.submitCrawl)
		r.Post("/crawls/sync", s.runCrawl)
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{job_id}", s.getJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
