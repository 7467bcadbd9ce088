package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const (
	insertJobSQL = `
INSERT INTO crawl_jobs (
	id, status, source_site, source_url, page_start, page_end,
	products_scraped, products_added, products_updated, started_at, triggered_by
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	// updateJobSQL leaves columns alone when their parameter is NULL and
	// refuses to touch jobs already in a terminal state.
	updateJobSQL = `
UPDATE crawl_jobs SET
	status = COALESCE($2, status),
	products_scraped = COALESCE($3, products_scraped),
	products_added = COALESCE($4, products_added),
	products_updated = COALESCE($5, products_updated),
	error_message = COALESCE($6, error_message),
	completed_at = COALESCE($7, completed_at),
	duration_seconds = COALESCE($8, duration_seconds)
WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	jobStatusSQL = `SELECT status FROM crawl_jobs WHERE id = $1`

	jobColumns = `id, status, source_site, source_url, page_start, page_end,
	products_scraped, products_added, products_updated, error_message,
	started_at, completed_at, triggered_by, duration_seconds`

	selectJobSQL = `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = $1`

	listJobsSQL = `SELECT ` + jobColumns + ` FROM crawl_jobs
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC, id DESC
LIMIT $2`
)

// DefaultListLimit caps ListJobs when no limit is requested.
const DefaultListLimit = 100

// JobStore implements crawler.JobStore on Postgres.
type JobStore struct {
	pool pool
}

// NewJobStore constructs a store from an existing pool (pgxpool or pgxmock).
func NewJobStore(p pool) (*JobStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// CreateJob inserts the job row and returns its ID.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.CrawlJob) (string, error) {
	if job.ID == "" {
		return "", errors.New("job id is required")
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	var start, end *int
	if job.PageRange != nil {
		start, end = &job.PageRange.Start, &job.PageRange.End
	}
	_, err := s.pool.Exec(ctx, insertJobSQL,
		job.ID,
		string(job.Status),
		job.SourceSite,
		job.SourceURL,
		start,
		end,
		job.ProductsScraped,
		job.ProductsAdded,
		job.ProductsUpdated,
		job.StartedAt,
		string(job.TriggeredBy),
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return job.ID, nil
}

// UpdateJob applies the non-nil fields of update.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, update crawler.JobUpdate) error {
	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}
	tag, err := s.pool.Exec(ctx, updateJobSQL,
		jobID,
		status,
		update.ProductsScraped,
		update.ProductsAdded,
		update.ProductsUpdated,
		update.ErrorMessage,
		update.CompletedAt,
		update.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, jobStatusSQL, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load job status: %w", err)
	}
	return fmt.Errorf("job %s is %s: %w", jobID, current, crawler.ErrJobTerminal)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.CrawlJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, selectJobSQL, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *JobStore) ListJobs(ctx context.Context, filter crawler.JobFilter) ([]crawler.CrawlJob, error) {
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, listJobsSQL, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawler.CrawlJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (crawler.CrawlJob, error) {
	var (
		job                 crawler.CrawlJob
		status, triggeredBy string
		pageStart, pageEnd  *int
		errMsg              *string
		completedAt         *time.Time
	)
	err := row.Scan(
		&job.ID, &status, &job.SourceSite, &job.SourceURL, &pageStart, &pageEnd,
		&job.ProductsScraped, &job.ProductsAdded, &job.ProductsUpdated, &errMsg,
		&job.StartedAt, &completedAt, &triggeredBy, &job.DurationSeconds,
	)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	job.Status = crawler.JobStatus(status)
	job.TriggeredBy = crawler.Trigger(triggeredBy)
	job.ErrorMessage = deref(errMsg)
	job.CompletedAt = completedAt
	if pageStart != nil && pageEnd != nil {
		job.PageRange = &crawler.PageRange{Start: *pageStart, End: *pageEnd}
	}
	return job, nil
}
