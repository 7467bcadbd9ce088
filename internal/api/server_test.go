package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	queueMemory "github.com/JakeFAU/catalog-crawler/internal/queue/memory"
	storageMemory "github.com/JakeFAU/catalog-crawler/internal/storage/memory"
)

type fakeService struct {
	mu        sync.Mutex
	submitErr error
	runResult crawler.Result
	runErr    error
	abandoned map[string]error
	requests  []crawler.Request
}

func (f *fakeService) Submit(_ context.Context, req crawler.Request) (crawler.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.submitErr != nil {
		return crawler.QueueItem{}, f.submitErr
	}
	return crawler.QueueItem{JobID: "job-async", Request: req}, nil
}

func (f *fakeService) Run(_ context.Context, req crawler.Request) (crawler.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.runResult, f.runErr
}

func (f *fakeService) Abandon(_ context.Context, jobID string, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abandoned == nil {
		f.abandoned = make(map[string]error)
	}
	f.abandoned[jobID] = cause
}

func (f *fakeService) PresetNames() []string { return []string{"generic", "grid"} }

type testEnv struct {
	svc    *fakeService
	jobs   *storageMemory.JobStore
	queue  *queueMemory.Queue
	server *Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	svc := &fakeService{}
	jobs := storageMemory.NewJobStore()
	q := queueMemory.NewQueue(4)
	server := NewServer(svc, jobs, dispatcher.New(q, nil), opts, zap.NewNop())
	return &testEnv{svc: svc, jobs: jobs, queue: q, server: server}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RequestIDPropagated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "req-123"})
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_ListPresets(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/v1/presets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"presets":["generic","grid"]}`, rec.Body.String())
}

func TestServer_SubmitCrawlEnqueues(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	body := `{"target_url":"https://shop.example/c","preset":"grid","page_range":{"start":1,"end":3}}`
	rec := env.do(t, http.MethodPost, "/v1/crawls", body, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "job-async", decodeBody(t, rec)["job_id"])

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-async", item.JobID)
	require.Equal(t, crawler.TriggerAPI, item.Request.TriggeredBy)
	require.Equal(t, &crawler.PageRange{Start: 1, End: 3}, item.Request.PageRange)
}

func TestServer_SubmitCrawlRejectsBadBodies(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed":     "{invalid",
		"unknown field": `{"target_url":"https://shop.example","triggered_by":"cron"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, Options{})
			rec := env.do(t, http.MethodPost, "/v1/crawls", body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, 0, env.queue.Len())
		})
	}
}

func TestServer_SubmitCrawlConfigError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.svc.submitErr = &crawler.ConfigError{Field: "target_url", Reason: "must be http or https"}
	rec := env.do(t, http.MethodPost, "/v1/crawls", `{"target_url":"ftp://x"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "target_url")
	require.Equal(t, 0, env.queue.Len())
}

func TestServer_SubmitCrawlAbandonsWhenQueueClosed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.queue.Close()
	rec := env.do(t, http.MethodPost, "/v1/crawls", `{"target_url":"https://shop.example"}`, nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, env.svc.abandoned, "job-async")
	require.ErrorIs(t, env.svc.abandoned["job-async"], crawler.ErrQueueClosed)
}

func TestServer_RunCrawlReturnsRecords(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.svc.runResult = crawler.Result{
		JobID:         "job-sync",
		Records:       []crawler.ScrapedRecord{{ID: "sku-1", Title: "Lamp", Price: 12.5, Labels: []string{}}},
		PagesFetched:  1,
		ProductsAdded: 1,
	}
	rec := env.do(t, http.MethodPost, "/v1/crawls/sync", `{"target_url":"https://shop.example"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp crawlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "job-sync", resp.JobID)
	require.Len(t, resp.Records, 1)
	require.Equal(t, "Lamp", resp.Records[0].Title)
	require.Equal(t, 1, resp.ProductsAdded)
	require.Equal(t, crawler.TriggerAPI, env.svc.requests[0].TriggeredBy)
}

func TestServer_RunCrawlMapsFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		kind   crawler.FailureKind
	}{
		{"config", &crawler.ConfigError{Field: "preset", Reason: "unknown"}, http.StatusBadRequest, crawler.FailureConfig},
		{"forbidden", crawler.NewFetchError("https://shop.example", http.StatusForbidden, nil), http.StatusBadGateway, crawler.FailureForbidden},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, crawler.FailureTimeout},
		{"persistence", &crawler.PersistenceError{Op: "upsert", Err: errors.New("boom")}, http.StatusInternalServerError, crawler.FailurePersistence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, Options{})
			env.svc.runResult = crawler.Result{JobID: "job-x"}
			env.svc.runErr = tc.err
			rec := env.do(t, http.MethodPost, "/v1/crawls/sync", `{"target_url":"https://shop.example"}`, nil)

			require.Equal(t, tc.status, rec.Code)
			var resp crawlErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tc.kind, resp.Kind)
			require.Equal(t, "job-x", resp.JobID)
		})
	}
}

func TestServer_JobsEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		_, err := env.jobs.CreateJob(ctx, crawler.CrawlJob{
			ID:          id,
			SourceSite:  "shop",
			SourceURL:   "https://shop.example",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			TriggeredBy: crawler.TriggerCron,
		})
		require.NoError(t, err)
	}
	completed := crawler.JobStatusCompleted
	require.NoError(t, env.jobs.UpdateJob(ctx, "job-b", crawler.JobUpdate{Status: &completed}))

	t.Run("list newest first", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/jobs?limit=2", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Jobs []crawler.CrawlJob `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 2)
		require.Equal(t, "job-c", resp.Jobs[0].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/jobs?status=completed", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "job-b")
		require.NotContains(t, rec.Body.String(), "job-a")
	})

	t.Run("bad query", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/jobs?status=done", "", nil).Code)
		require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/jobs?limit=-1", "", nil).Code)
	})

	t.Run("get one", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/jobs/job-a", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"source_site":"shop"`)
	})

	t.Run("missing", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/jobs/nope", "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_APIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{APIKey: "secret"})

	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/presets", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized,
		env.do(t, http.MethodGet, "/v1/presets", "", map[string]string{"X-API-Key": "wrong"}).Code)
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodGet, "/v1/presets", "", map[string]string{"X-API-Key": "secret"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{AllowedOrigins: []string{"https://dash.example"}})
	rec := env.do(t, http.MethodOptions, "/v1/crawls", "", map[string]string{
		"Origin":                        "https://dash.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	require.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.server.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := env.do(t, http.MethodGet, "/boom", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusServiceUnavailable, statusForError(context.Canceled))
	require.Equal(t, http.StatusBadGateway,
		statusForError(crawler.NewFetchError("https://x.example", http.StatusTooManyRequests, nil)))
}
