// Package worker executes queued crawl jobs.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Executor runs one submitted crawl to a terminal job state.
type Executor interface {
	Execute(ctx context.Context, item crawler.QueueItem) (crawler.Result, error)
}

// Worker consumes queue items and hands each to the executor. One worker
// runs one crawl at a time.
type Worker struct {
	id     int
	queue  crawler.Queue
	exec   Executor
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, exec Executor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		id:     id,
		queue:  queue,
		exec:   exec,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	if w.exec == nil {
		w.logger.Error("no executor configured", zap.String("job_id", item.JobID))
		return
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	res, err := w.exec.Execute(ctx, item)
	if err != nil {
		w.logger.Warn("job failed",
			zap.String("job_id", item.JobID),
			zap.String("kind", string(crawler.FailureKindOf(err))),
			zap.Int("records", len(res.Records)),
			zap.Error(err))
		return
	}
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.Int("records", len(res.Records)),
		zap.Int("pages", res.PagesFetched),
		zap.Int("failed_pages", len(res.FailedPages)))
}
