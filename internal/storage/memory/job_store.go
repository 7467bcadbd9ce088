// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.CrawlJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawler.CrawlJob)}
}

// CreateJob stores a new job and returns its ID.
func (s *JobStore) CreateJob(_ context.Context, job crawler.CrawlJob) (string, error) {
	if job.ID == "" {
		return "", errors.New("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return "", fmt.Errorf("job %s already exists", job.ID)
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

// UpdateJob applies the non-nil fields of update. Jobs in a terminal state
// reject every further update with crawler.ErrJobTerminal.
func (s *JobStore) UpdateJob(_ context.Context, jobID string, update crawler.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, crawler.ErrJobTerminal)
	}
	s.jobs[jobID] = applyUpdate(job, update)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *JobStore) ListJobs(_ context.Context, filter crawler.JobFilter) ([]crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.CrawlJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func applyUpdate(job crawler.CrawlJob, u crawler.JobUpdate) crawler.CrawlJob {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.ProductsScraped != nil {
		job.ProductsScraped = *u.ProductsScraped
	}
	if u.ProductsAdded != nil {
		job.ProductsAdded = *u.ProductsAdded
	}
	if u.ProductsUpdated != nil {
		job.ProductsUpdated = *u.ProductsUpdated
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		ts := *u.CompletedAt
		job.CompletedAt = &ts
	}
	if u.DurationSeconds != nil {
		d := *u.DurationSeconds
		job.DurationSeconds = &d
	}
	return job
}
