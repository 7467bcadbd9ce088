// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/pagination"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/catalog-crawler/internal/service"
	gcsblob "github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
	storageMemory "github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

// App holds the shared, long-lived services built from a Config.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	service    *service.Service
	jobs       crawler.JobStore
	queue      *queueMemory.Queue
	dispatcher *dispatcher.Dispatcher

	checks  []func(context.Context) error
	closers []func()
}

// Options override collaborators, mainly for tests.
type Options struct {
	// Fetcher replaces the colly fetcher built from config.
	Fetcher crawler.Fetcher
	// Pauser replaces the timer-based pauser.
	Pauser crawler.Pauser
}

// New builds every service named by cfg. Partially built resources are
// released when a later step fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.cfg
	clock := system.New()

	products, jobs, err := a.buildRepositories(ctx, clock)
	if err != nil {
		return err
	}
	a.jobs = jobs

	archive, err := a.buildArchive(ctx)
	if err != nil {
		return err
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		limiter, err := ratelimit.New(ratelimit.Config{
			RPS:   cfg.Crawler.HostRPS,
			Burst: cfg.Crawler.HostBurst,
		})
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		fetchCfg := collyfetcher.Config{
			UserAgents:     cfg.Crawler.UserAgents,
			AcceptLanguage: cfg.Crawler.AcceptLanguage,
			Timeout:        cfg.FetchTimeout(),
		}
		if limiter.Enabled() {
			fetchCfg.Limiter = limiter
		}
		fetcher = collyfetcher.New(fetchCfg, a.logger.Named("fetcher"))
	}
	pauser := opts.Pauser
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}

	extractor := extract.New(extract.Options{
		CurrencyRate: cfg.Extract.CurrencyRate,
		DefaultBrand: cfg.Extract.DefaultBrand,
		ImageWidth:   cfg.Extract.ImageWidth,
	}, crawler.NewCounter(0), a.logger.Named("extract"))
	walker := pagination.New(fetcher, extractor, pauser, pagination.Options{
		PageDelay:  cfg.PageDelay(),
		DedupeSize: cfg.Crawler.DedupeSize,
	}, a.logger.Named("pagination"))

	deps := service.Deps{
		Walker:    walker,
		Presets:   extract.NewPresets(cfg.Presets),
		Products:  products,
		Jobs:      jobs,
		Archive:   archive,
		Publisher: publisher,
		Hasher:    sha256.New(),
		Clock:     clock,
		IDs:       uuid.New(),
		Pauser:    pauser,
	}
	svc, err := service.New(deps, service.Config{
		SiteDelay:          cfg.SiteDelay(),
		JobBudget:          cfg.JobBudget(),
		DefaultMaxPages:    cfg.Crawler.MaxPagesDefault,
		MaxRangePages:      cfg.Crawler.MaxRangePages,
		ArchivePrefix:      cfg.Archive.Prefix,
		ArchiveContentType: cfg.Archive.ContentType,
		Topic:              cfg.PubSub.TopicName,
	}, a.logger.Named("service"))
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	a.service = svc

	a.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	a.dispatcher = dispatcher.NewPool(a.queue, svc, cfg.Crawler.Concurrency, a.logger.Named("worker"))
	return nil
}

func (a *App) buildRepositories(ctx context.Context, clock crawler.Clock) (crawler.ProductRepository, crawler.JobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Info("using in-memory product and job stores")
		return storageMemory.NewProductStore(clock), storageMemory.NewJobStore(), nil
	case config.BackendPostgres:
		a.logger.Info("connecting to PostgreSQL")
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:      a.cfg.Storage.DSN,
			MaxConns: a.cfg.Storage.MaxConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, pool.Ping)
		if a.cfg.Storage.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		products, err := postgres.NewProductStore(pool, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("product store: %w", err)
		}
		jobs, err := postgres.NewJobStore(pool)
		if err != nil {
			return nil, nil, fmt.Errorf("job store: %w", err)
		}
		return products, jobs, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) buildArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return storageMemory.NewBlobStore(), nil
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		store, err := gcsblob.New(client, gcsblob.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	})
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.logger.Info("publishing job notifications", zap.String("topic", a.cfg.PubSub.TopicName))
	return pub, nil
}

// Service returns the crawl service.
func (a *App) Service() *service.Service {
	return a.service
}

// Jobs returns the job store.
func (a *App) Jobs() crawler.JobStore {
	return a.jobs
}

// Dispatcher returns the worker pool fed by the submission queue.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// APIServer builds the HTTP API on top of the app's services.
func (a *App) APIServer() *api.Server {
	opts := api.Options{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RequestTimeout: a.cfg.RequestTimeout(),
		Ready:          a.Ready,
	}
	if a.cfg.Auth.Enabled {
		opts.APIKey = a.cfg.Auth.APIKey
	}
	return api.NewServer(a.service, a.jobs, a.dispatcher, opts, a.logger.Named("api"))
}

// Ready runs every dependency health check.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the queue and releases external clients in reverse order.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
