// Package service runs crawl invocations end to end: it validates the
// request, records the job, walks the catalog, upserts what was found and
// notifies downstream consumers.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/pagination"
)

// Defaults applied when Config fields are zero.
const (
	DefaultSiteDelay          = 2 * time.Second
	DefaultPersistTimeout     = 30 * time.Second
	DefaultArchiveContentType = "text/html; charset=utf-8"
)

// Config controls Service behavior.
type Config struct {
	// SiteDelay separates consecutive targets in RunTargets. Negative disables it.
	SiteDelay time.Duration
	// JobBudget bounds a single execution. Zero means no budget.
	JobBudget time.Duration
	// PersistTimeout bounds the writes made after the walk context ended.
	PersistTimeout     time.Duration
	DefaultMaxPages    int
	// MaxRangePages caps the span of an explicit page range. Zero disables the cap.
	MaxRangePages      int
	ArchivePrefix      string
	ArchiveContentType string
	Topic              string
}

// Deps are the collaborators of a Service. Archive and Publisher are optional.
type Deps struct {
	Walker    *pagination.Walker
	Presets   *extract.Presets
	Products  crawler.ProductRepository
	Jobs      crawler.JobStore
	Archive   crawler.BlobStore
	Publisher crawler.Publisher
	Hasher    crawler.Hasher
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Pauser    crawler.Pauser
}

// Service executes crawl requests.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// Plan is a validated request ready to run.
type Plan struct {
	Config      crawler.ExtractionConfig
	PageRange   *crawler.PageRange
	SourceSite  string
	TriggeredBy crawler.Trigger
}

// Notification is published once per finished job.
type Notification struct {
	JobID           string            `json:"job_id"`
	Status          crawler.JobStatus `json:"status"`
	SourceSite      string            `json:"source_site"`
	SourceURL       string            `json:"source_url"`
	ProductsScraped int               `json:"products_scraped"`
	ProductsAdded   int               `json:"products_added"`
	ProductsUpdated int               `json:"products_updated"`
	DurationSeconds float64           `json:"duration_seconds"`
	ErrorMessage    string            `json:"error_message,omitempty"`
}

// New constructs a Service.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	switch {
	case deps.Walker == nil:
		return nil, errors.New("walker is required")
	case deps.Presets == nil:
		return nil, errors.New("presets are required")
	case deps.Products == nil:
		return nil, errors.New("product repository is required")
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Archive != nil && deps.Hasher == nil:
		return nil, errors.New("hasher is required when archiving pages")
	}
	if deps.Pauser == nil {
		deps.Pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteDelay == 0 {
		cfg.SiteDelay = DefaultSiteDelay
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = DefaultArchiveContentType
	}
	metrics.Init()
	return &Service{deps: deps, cfg: cfg, logger: logger}, nil
}

// PresetNames lists the extraction presets a request may name.
func (s *Service) PresetNames() []string {
	return s.deps.Presets.Names()
}

// Prepare validates req and resolves its extraction config. It never fetches.
func (s *Service) Prepare(req crawler.Request) (Plan, error) {
	target, err := crawler.ParseTarget(req.TargetURL)
	if err != nil {
		return Plan{}, err
	}

	var cfg crawler.ExtractionConfig
	switch {
	case req.Config != nil:
		if req.Preset != "" {
			return Plan{}, &crawler.ConfigError{Field: "preset", Reason: "preset and config are mutually exclusive"}
		}
		cfg = req.Config.WithTarget(target.String())
	default:
		name := req.Preset
		if name == "" {
			name = extract.PresetGeneric
		}
		cfg, err = s.deps.Presets.Lookup(name, target.String())
		if err != nil {
			return Plan{}, err
		}
	}
	if cfg.Pagination != nil && cfg.Pagination.MaxPages == 0 && s.cfg.DefaultMaxPages > 0 {
		cfg.Pagination.MaxPages = s.cfg.DefaultMaxPages
	}
	if err := extract.ValidateConfig(cfg); err != nil {
		return Plan{}, err
	}
	if err := extract.ValidateRange(req.PageRange, s.cfg.MaxRangePages); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Config:      cfg,
		SourceSite:  req.SourceSite,
		TriggeredBy: req.TriggeredBy,
	}
	if req.PageRange != nil {
		pr := *req.PageRange
		plan.PageRange = &pr
	}
	if plan.SourceSite == "" {
		plan.SourceSite = crawler.SiteName(target.String())
	}
	if plan.TriggeredBy == "" {
		plan.TriggeredBy = crawler.TriggerManual
	}
	return plan, nil
}

// Submit validates req and records a pending job for it. The returned item
// is handed to Execute, usually through a queue.
func (s *Service) Submit(ctx context.Context, req crawler.Request) (crawler.QueueItem, error) {
	plan, err := s.Prepare(req)
	if err != nil {
		return crawler.QueueItem{}, err
	}
	jobID, err := s.createJob(ctx, plan)
	if err != nil {
		return crawler.QueueItem{}, err
	}
	req.TriggeredBy = plan.TriggeredBy
	req.SourceSite = plan.SourceSite
	return crawler.QueueItem{JobID: jobID, Request: req, Submitted: s.deps.Clock.Now().UnixNano()}, nil
}

// Execute runs a submitted job to a terminal state.
func (s *Service) Execute(ctx context.Context, item crawler.QueueItem) (crawler.Result, error) {
	plan, err := s.Prepare(item.Request)
	if err != nil {
		s.abandon(ctx, item.JobID, err)
		return crawler.Result{JobID: item.JobID}, err
	}
	return s.execute(ctx, item.JobID, plan)
}

// Run validates req, records its job and executes it synchronously.
func (s *Service) Run(ctx context.Context, req crawler.Request) (crawler.Result, error) {
	plan, err := s.Prepare(req)
	if err != nil {
		return crawler.Result{}, err
	}
	jobID, err := s.createJob(ctx, plan)
	if err != nil {
		return crawler.Result{}, err
	}
	return s.execute(ctx, jobID, plan)
}

// Abandon marks a pending job failed without running it, for example when
// it could not be enqueued.
func (s *Service) Abandon(ctx context.Context, jobID string, cause error) {
	s.abandon(ctx, jobID, cause)
}

func (s *Service) createJob(ctx context.Context, plan Plan) (string, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.CrawlJob{
		ID:          jobID,
		Status:      crawler.JobStatusPending,
		SourceSite:  plan.SourceSite,
		SourceURL:   plan.Config.TargetURL,
		PageRange:   plan.PageRange,
		StartedAt:   s.deps.Clock.Now(),
		TriggeredBy: plan.TriggeredBy,
	}
	if _, err := s.deps.Jobs.CreateJob(ctx, job); err != nil {
		return "", &crawler.PersistenceError{Op: "create job", Err: err}
	}
	return jobID, nil
}

func (s *Service) execute(parent context.Context, jobID string, plan Plan) (crawler.Result, error) {
	start := s.deps.Clock.Now()
	logger := s.logger.With(zap.String("job_id", jobID), zap.String("url", plan.Config.TargetURL))

	ctx := parent
	if s.cfg.JobBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.cfg.JobBudget)
		defer cancel()
	}

	running := crawler.JobStatusRunning
	if err := s.deps.Jobs.UpdateJob(ctx, jobID, crawler.JobUpdate{Status: &running}); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		err = &crawler.PersistenceError{Op: "mark job running", Err: err}
		s.finish(ctx, logger, jobID, plan, start, crawler.UpsertResult{}, 0, err)
		return crawler.Result{JobID: jobID}, err
	}
	logger.Info("crawl started", zap.String("site", plan.SourceSite))

	walker := s.deps.Walker.WithHook(s.pageHook(jobID, plan.SourceSite, logger))
	walked, walkErr := walker.Walk(ctx, plan.Config, plan.PageRange)
	for _, f := range walked.Failures {
		metrics.ObservePage(plan.SourceSite, f.Kind, 0)
		metrics.ObserveFetchFailure(f.Kind)
	}

	res := crawler.Result{
		JobID:        jobID,
		Records:      walked.Records,
		PagesFetched: walked.PagesFetched,
		FailedPages:  walked.Failures,
	}
	if res.Records == nil {
		res.Records = []crawler.ScrapedRecord{}
	}

	runErr := walkErr
	var upserted crawler.UpsertResult
	if len(res.Records) > 0 {
		persistCtx, cancel := s.persistContext(ctx)
		var err error
		upserted, err = s.deps.Products.UpsertBatch(persistCtx, res.Records)
		cancel()
		if err != nil {
			var pe *crawler.PersistenceError
			if !errors.As(err, &pe) {
				err = &crawler.PersistenceError{Op: "upsert products", Err: err}
			}
			logger.Error("upsert failed", zap.Int("records", len(res.Records)), zap.Error(err))
			runErr = errors.Join(walkErr, err)
		} else {
			metrics.ObserveUpsert(upserted)
			res.ProductsAdded, res.ProductsUpdated = upserted.Added, upserted.Updated
		}
	}

	res.Duration = s.finish(ctx, logger, jobID, plan, start, upserted, len(res.Records), runErr, walked.Failures...)
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// finish records the terminal job state and notifies. It runs on a detached
// context so cancellation of the crawl never leaves the job running.
func (s *Service) finish(
	ctx context.Context,
	logger *zap.Logger,
	jobID string,
	plan Plan,
	start time.Time,
	upserted crawler.UpsertResult,
	scraped int,
	runErr error,
	failures ...crawler.PageFailure,
) time.Duration {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	completedAt := s.deps.Clock.Now()
	duration := completedAt.Sub(start)
	seconds := duration.Seconds()

	status := crawler.JobStatusCompleted
	message := ""
	if runErr != nil {
		status = crawler.JobStatusFailed
		message = runErr.Error()
	} else if len(failures) > 0 {
		message = fmt.Sprintf("%d page(s) failed: %s", len(failures), failures[0].Message)
	}

	update := crawler.JobUpdate{
		Status:          &status,
		ProductsScraped: &scraped,
		ProductsAdded:   &upserted.Added,
		ProductsUpdated: &upserted.Updated,
		CompletedAt:     &completedAt,
		DurationSeconds: &seconds,
	}
	if message != "" {
		update.ErrorMessage = &message
	}
	if err := s.deps.Jobs.UpdateJob(persistCtx, jobID, update); err != nil {
		logger.Error("final job update failed", zap.Error(err))
	}
	metrics.ObserveJob(status, duration)

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("scraped", scraped),
		zap.Int("added", upserted.Added),
		zap.Int("updated", upserted.Updated),
		zap.Int("failed_pages", len(failures)),
		zap.Duration("duration", duration),
	}
	if runErr != nil {
		logger.Warn("crawl failed", append(fields,
			zap.String("kind", string(crawler.FailureKindOf(runErr))),
			zap.Error(runErr))...)
	} else {
		logger.Info("crawl completed", fields...)
	}

	s.notify(persistCtx, logger, Notification{
		JobID:           jobID,
		Status:          status,
		SourceSite:      plan.SourceSite,
		SourceURL:       plan.Config.TargetURL,
		ProductsScraped: scraped,
		ProductsAdded:   upserted.Added,
		ProductsUpdated: upserted.Updated,
		DurationSeconds: seconds,
		ErrorMessage:    message,
	})
	return duration
}

func (s *Service) abandon(ctx context.Context, jobID string, cause error) {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()
	status := crawler.JobStatusFailed
	message := cause.Error()
	now := s.deps.Clock.Now()
	if err := s.deps.Jobs.UpdateJob(persistCtx, jobID, crawler.JobUpdate{
		Status:       &status,
		ErrorMessage: &message,
		CompletedAt:  &now,
	}); err != nil {
		s.logger.Error("abandon job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	metrics.ObserveJob(status, 0)
}

// persistContext keeps ctx when it is still live and otherwise detaches from
// it with a bounded timeout so partial results can still be written.
func (s *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
}

func (s *Service) pageHook(jobID, site string, logger *zap.Logger) pagination.PageHook {
	return func(ctx context.Context, ev pagination.PageEvent) {
		metrics.ObservePage(site, "ok", len(ev.Page.Body))
		metrics.ObserveRecords(ev.Strategy, ev.Records)
		if s.deps.Archive == nil {
			return
		}
		if _, err := s.archivePage(ctx, jobID, ev); err != nil {
			logger.Warn("archive page failed", zap.Int("page", ev.Number), zap.Error(err))
		}
	}
}

func (s *Service) archivePage(ctx context.Context, jobID string, ev pagination.PageEvent) (string, error) {
	hash, err := s.deps.Hasher.Hash(ev.Page.Body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	uri, err := s.deps.Archive.PutObject(ctx, s.archivePath(jobID, ev.Number, hash), s.cfg.ArchiveContentType, bytes.NewReader(ev.Page.Body))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (s *Service) archivePath(jobID string, page int, hash string) string {
	prefix := strings.Trim(s.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%d-%s.html", jobID, page, hash)
	}
	return fmt.Sprintf("%s/%s/%d-%s.html", prefix, jobID, page, hash)
}

func (s *Service) notify(ctx context.Context, logger *zap.Logger, n Notification) {
	if s.deps.Publisher == nil || s.cfg.Topic == "" {
		return
	}
	id, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, n)
	if err != nil {
		logger.Warn("publish notification failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("notification published", zap.String("message_id", id))
}
