package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

type crawlRequest struct {
	TargetURL  string                    `json:"target_url"`
	Preset     string                    `json:"preset,omitempty"`
	Config     *crawler.ExtractionConfig `json:"config,omitempty"`
	PageRange  *crawler.PageRange        `json:"page_range,omitempty"`
	SourceSite string                    `json:"source_site,omitempty"`
}

func (c crawlRequest) toRequest() crawler.Request {
	return crawler.Request{
		TargetURL:   c.TargetURL,
		Preset:      c.Preset,
		Config:      c.Config,
		PageRange:   c.PageRange,
		SourceSite:  c.SourceSite,
		TriggeredBy: crawler.TriggerAPI,
	}
}

type crawlResponse struct {
	JobID           string                  `json:"job_id"`
	Records         []crawler.ScrapedRecord `json:"records"`
	PagesFetched    int                     `json:"pages_fetched"`
	ProductsAdded   int                     `json:"products_added"`
	ProductsUpdated int                     `json:"products_updated"`
	FailedPages     []crawler.PageFailure   `json:"failed_pages,omitempty"`
	DurationSeconds float64                 `json:"duration_seconds"`
}

type crawlErrorResponse struct {
	Error           string                  `json:"error"`
	Kind            crawler.FailureKind     `json:"kind"`
	StatusCode      int                     `json:"status_code,omitempty"`
	JobID           string                  `json:"job_id,omitempty"`
	Records         []crawler.ScrapedRecord `json:"records,omitempty"`
	PagesFetched    int                     `json:"pages_fetched"`
	FailedPages     []crawler.PageFailure   `json:"failed_pages,omitempty"`
	DurationSeconds float64                 `json:"duration_seconds"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"presets": s.svc.PresetNames()})
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCrawlRequest(w, r)
	if !ok {
		return
	}
	item, err := s.svc.Submit(r.Context(), req.toRequest())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), s.opts.EnqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue crawl failed", zap.String("job_id", item.JobID), zap.Error(err))
		s.svc.Abandon(r.Context(), item.JobID, fmt.Errorf("enqueue: %w", err))
		writeError(w, http.StatusServiceUnavailable, "crawl queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": item.JobID,
		"status": string(crawler.JobStatusPending),
	})
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCrawlRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()
	res, err := s.svc.Run(r.Context(), req.toRequest())
	elapsed := time.Since(start).Seconds()
	if err != nil {
		writeJSON(w, statusForError(err), crawlErrorResponse{
			Error:           err.Error(),
			Kind:            crawler.FailureKindOf(err),
			StatusCode:      crawler.StatusCodeOf(err),
			JobID:           res.JobID,
			Records:         res.Records,
			PagesFetched:    res.PagesFetched,
			FailedPages:     res.FailedPages,
			DurationSeconds: elapsed,
		})
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{
		JobID:           res.JobID,
		Records:         res.Records,
		PagesFetched:    res.PagesFetched,
		ProductsAdded:   res.ProductsAdded,
		ProductsUpdated: res.ProductsUpdated,
		FailedPages:     res.FailedPages,
		DurationSeconds: elapsed,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var filter crawler.JobFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := crawler.JobStatus(raw)
		switch status {
		case crawler.JobStatusPending, crawler.JobStatusRunning, crawler.JobStatusCompleted, crawler.JobStatusFailed:
			filter.Status = &status
		default:
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	jobs, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []crawler.CrawlJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func decodeCrawlRequest(w http.ResponseWriter, r *http.Request) (crawlRequest, bool) {
	var req crawlRequest
	dec := apiJSON.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return crawlRequest{}, false
	}
	return req, true
}

// statusForError maps the failure taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch crawler.FailureKindOf(err) {
	case crawler.FailureConfig:
		return http.StatusBadRequest
	case crawler.FailureForbidden, crawler.FailureRateLimited, crawler.FailureOther:
		return http.StatusBadGateway
	case crawler.FailureTimeout:
		return http.StatusGatewayTimeout
	case crawler.FailureCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
